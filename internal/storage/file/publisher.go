package file

import (
	"context"
	"fmt"

	"github.com/aliskhannn/latex2image/internal/model"
)

// Backends.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// ArtifactName returns the public file name of a job's image.
func ArtifactName(id string, f model.Format) string {
	return fmt.Sprintf("img-%s.%s", id, f.Ext())
}

// ContentType returns the MIME type of a format.
func ContentType(f model.Format) string {
	switch f {
	case model.FormatSVG:
		return "image/svg+xml"
	case model.FormatPNG:
		return "image/png"
	case model.FormatJPG:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Publisher makes a finished artifact publicly reachable.
type Publisher interface {
	// Publish copies src into the public store as img-<id>.<ext> and
	// returns its URL.
	Publish(ctx context.Context, id string, f model.Format, src string) (string, error)
}

var (
	_ Publisher = (*LocalPublisher)(nil)
	_ Publisher = (*Storage)(nil)
)
