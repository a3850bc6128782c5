package processor

import (
	"context"
	"time"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// whiteBackground is the inline style svgexport applies for opaque formats.
const whiteBackground = "svg {background: white}"

// Rasterizer converts the rendered SVG to PNG or JPG with svgexport.
type Rasterizer struct {
	runner  runner.Runner
	binary  string
	timeout time.Duration
}

// NewRasterizer creates a Rasterizer invoking binary ("svgexport" if empty).
// Each run is bounded by timeout; zero leaves it to the caller's context.
func NewRasterizer(r runner.Runner, binary string, timeout time.Duration) *Rasterizer {
	if binary == "" {
		binary = "svgexport"
	}
	return &Rasterizer{runner: r, binary: binary, timeout: timeout}
}

// RasterFile returns the workspace file name of the raster output.
func RasterFile(f model.Format) string { return "equation." + f.Ext() }

// Rasterize converts svgPath to format f and returns the raster path.
func (r *Rasterizer) Rasterize(ctx context.Context, ws *workspace.Workspace, svgPath string, f model.Format) (string, error) {
	name := RasterFile(f)
	args := []string{svgPath, ws.Path(name)}
	if f.Opaque() {
		args = append(args, whiteBackground)
	}

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.runner.Run(ctx, runner.Command{Name: r.binary, Args: args, Dir: ws.Dir})

	if !ws.Exists(name) {
		if err == nil {
			err = ErrNoOutput
		}
		return "", rasterError(f, err)
	}

	return ws.Path(name), nil
}
