// Package idgen allocates job identifiers.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a random 32-character lowercase hex id. The id names both the
// job workspace and the published artifact.
func New() string {
	return FromUUID(uuid.New())
}

// FromUUID renders u in the job id form.
func FromUUID(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}
