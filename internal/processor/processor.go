// Package processor implements the external-tool stages of a conversion:
// LaTeX → SVG rendering, SVG → raster conversion and raster compression.
package processor

import (
	"context"
	"time"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// Options configures all stages.
type Options struct {
	Render          RenderOptions
	RasterBinary    string
	RasterTimeout   time.Duration
	CompressDriver  string // CompressImagemin, CompressNative or CompressNone
	CompressBinary  string
	CompressTimeout time.Duration
	JPEGQuality     int
}

// Processor bundles the stages behind one value.
type Processor struct {
	renderer   *Renderer
	rasterizer *Rasterizer
	compressor Compressor
}

// New creates a Processor whose tools are invoked through r.
func New(r runner.Runner, opts Options) *Processor {
	var c Compressor
	switch opts.CompressDriver {
	case CompressNative:
		c = NativeCompressor{JPEGQuality: opts.JPEGQuality}
	case CompressNone:
		c = NopCompressor{}
	default:
		c = NewExternalCompressor(r, opts.CompressBinary, opts.CompressTimeout)
	}

	return &Processor{
		renderer:   NewRenderer(r, opts.Render),
		rasterizer: NewRasterizer(r, opts.RasterBinary, opts.RasterTimeout),
		compressor: c,
	}
}

// Render compiles the workspace document to SVG.
func (p *Processor) Render(ctx context.Context, ws *workspace.Workspace, scale model.Scale) (string, error) {
	return p.renderer.Render(ctx, ws, scale)
}

// Rasterize converts the SVG to a raster format.
func (p *Processor) Rasterize(ctx context.Context, ws *workspace.Workspace, svgPath string, f model.Format) (string, error) {
	return p.rasterizer.Rasterize(ctx, ws, svgPath, f)
}

// Compress compresses the raster file.
func (p *Processor) Compress(ctx context.Context, ws *workspace.Workspace, src string, f model.Format) (string, error) {
	return p.compressor.Compress(ctx, ws, src, f)
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
