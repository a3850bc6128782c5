package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/aliskhannn/latex2image/internal/model"
)

// LocalPublisher copies artifacts into a directory served by the HTTP server.
type LocalPublisher struct {
	fs        afero.Fs
	dir       string
	urlPrefix string
}

// NewLocalPublisher creates a LocalPublisher writing into dir, creating it if
// needed. URLs are urlPrefix followed by the file name.
func NewLocalPublisher(fs afero.Fs, dir, urlPrefix string) (*LocalPublisher, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if urlPrefix != "" && !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}

	return &LocalPublisher{fs: fs, dir: dir, urlPrefix: urlPrefix}, nil
}

// Dir returns the output directory.
func (p *LocalPublisher) Dir() string { return p.dir }

// Publish copies src into the output directory. An existing artifact with
// the same name is never overwritten.
func (p *LocalPublisher) Publish(ctx context.Context, id string, f model.Format, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := ArtifactName(id, f)
	dst := filepath.Join(p.dir, name)

	in, err := p.fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer in.Close()

	out, err := p.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = p.fs.Remove(dst)
		return "", fmt.Errorf("copy %s: %w", name, err)
	}

	if err := out.Close(); err != nil {
		_ = p.fs.Remove(dst)
		return "", fmt.Errorf("close %s: %w", name, err)
	}

	return p.urlPrefix + name, nil
}
