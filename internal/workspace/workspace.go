// Package workspace manages the per-job scratch directories that hold the
// LaTeX source and every intermediate file of a conversion.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/wb-go/wbf/zlog"
)

// ErrInvalidID is returned for ids that could escape the workspace root.
var ErrInvalidID = errors.New("invalid job id")

// Workspace is an isolated directory owned by a single job.
type Workspace struct {
	ID  string
	Dir string

	fs afero.Fs
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// WriteFile writes data to name inside the workspace.
func (w *Workspace) WriteFile(name string, data []byte) error {
	if err := afero.WriteFile(w.fs, w.Path(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name exists inside the workspace and is a regular
// file with content.
func (w *Workspace) Exists(name string) bool {
	info, err := w.fs.Stat(w.Path(name))
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// Fs returns the file system the workspace lives on.
func (w *Workspace) Fs() afero.Fs { return w.fs }

// Manager creates and removes workspaces under a root directory.
type Manager struct {
	fs   afero.Fs
	root string
}

// NewManager creates a Manager rooted at root, creating the directory if needed.
func NewManager(fs afero.Fs, root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}

	if err := fs.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	return &Manager{fs: fs, root: abs}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh directory for the job. An existing directory is
// never reused.
func (m *Manager) Acquire(id string) (*Workspace, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, ErrInvalidID
	}

	dir := filepath.Join(m.root, id)
	if err := m.fs.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("workspace %s already exists: %w", id, err)
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{ID: id, Dir: dir, fs: m.fs}, nil
}

// Release removes the workspace and everything in it. Failures are logged,
// not returned: no response depends on them.
func (m *Manager) Release(w *Workspace) {
	if w == nil {
		return
	}

	if err := m.fs.RemoveAll(w.Dir); err != nil {
		zlog.Logger.Error().Err(err).Str("job_id", w.ID).Str("dir", w.Dir).Msg("failed to remove workspace")
		return
	}

	zlog.Logger.Debug().Str("job_id", w.ID).Msg("workspace removed")
}

// Sweep removes directories left under the root by a previous process that
// did not shut down cleanly. It must run before any job is acquired and
// returns the number of entries removed.
func (m *Manager) Sweep() (int, error) {
	entries, err := afero.ReadDir(m.fs, m.root)
	if err != nil {
		return 0, fmt.Errorf("read workspace root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if err := m.fs.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			zlog.Logger.Error().Err(err).Str("dir", e.Name()).Msg("failed to remove stale workspace")
			continue
		}
		removed++
	}

	if removed > 0 {
		zlog.Logger.Info().Int("count", removed).Msg("removed stale workspaces")
	}

	return removed, nil
}
