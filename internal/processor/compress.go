package processor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// Compression drivers.
const (
	CompressImagemin = "imagemin"
	CompressNative   = "native"
	CompressNone     = "none"
)

// Compressor shrinks a raster file and returns the path of the compressed copy.
type Compressor interface {
	Compress(ctx context.Context, ws *workspace.Workspace, src string, f model.Format) (string, error)
}

// CompressedFile returns the workspace file name of the compressed output.
func CompressedFile(f model.Format) string { return "equation_compressed." + f.Ext() }

// ExternalCompressor runs an imagemin-style tool that writes the compressed
// image to stdout.
type ExternalCompressor struct {
	runner  runner.Runner
	binary  string
	timeout time.Duration
}

// NewExternalCompressor creates an ExternalCompressor ("imagemin" if binary is
// empty). Each run is bounded by timeout; zero leaves it to the caller's context.
func NewExternalCompressor(r runner.Runner, binary string, timeout time.Duration) *ExternalCompressor {
	if binary == "" {
		binary = "imagemin"
	}
	return &ExternalCompressor{runner: r, binary: binary, timeout: timeout}
}

func (c *ExternalCompressor) Compress(ctx context.Context, ws *workspace.Workspace, src string, f model.Format) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.runner.Run(ctx, runner.Command{Name: c.binary, Args: []string{src}, Dir: ws.Dir})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.binary, err)
	}
	if len(out.Stdout) == 0 {
		return "", fmt.Errorf("%s: %w", c.binary, ErrEmptyOutput)
	}

	name := CompressedFile(f)
	if err := ws.WriteFile(name, out.Stdout); err != nil {
		return "", err
	}

	return ws.Path(name), nil
}

// NativeCompressor re-encodes the raster in process.
type NativeCompressor struct {
	JPEGQuality int
}

func (c NativeCompressor) Compress(ctx context.Context, ws *workspace.Workspace, src string, f model.Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fs := ws.Fs()

	in, err := fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("open raster: %w", err)
	}
	defer in.Close()

	img, err := imaging.Decode(in)
	if err != nil {
		return "", fmt.Errorf("decode raster: %w", err)
	}

	var (
		buf  bytes.Buffer
		opts []imaging.EncodeOption
		enc  imaging.Format
	)
	switch f {
	case model.FormatJPG:
		enc = imaging.JPEG
		if c.JPEGQuality > 0 {
			opts = append(opts, imaging.JPEGQuality(c.JPEGQuality))
		}
	case model.FormatPNG:
		enc = imaging.PNG
		opts = append(opts, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return "", fmt.Errorf("cannot compress %s", f)
	}

	if err := imaging.Encode(&buf, img, enc, opts...); err != nil {
		return "", fmt.Errorf("encode raster: %w", err)
	}

	// Keep the original when re-encoding does not help.
	if info, err := fs.Stat(src); err == nil && int64(buf.Len()) >= info.Size() {
		return src, nil
	}

	dst := ws.Path(CompressedFile(f))
	if err := afero.WriteFile(fs, dst, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write compressed raster: %w", err)
	}

	return dst, nil
}

// NopCompressor returns the raster unchanged.
type NopCompressor struct{}

func (NopCompressor) Compress(_ context.Context, _ *workspace.Workspace, src string, _ model.Format) (string, error) {
	return src, nil
}
