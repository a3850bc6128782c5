package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/semaphore"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// Files produced inside a job workspace.
const (
	DocumentFile = "equation.tex"
	DVIFile      = "equation.dvi"
	VectorFile   = "equation.svg"
)

// Sandbox modes.
const (
	SandboxDocker = "docker"
	SandboxLocal  = "local"
)

// Inside the container $1 is the compile timeout and $2 the scale.
const containerScript = `timeout "$1" latex -interaction nonstopmode -halt-on-error --no-shell-escape ` + DocumentFile +
	` && dvisvgm --no-fonts --scale="$2" --exact ` + DVIFile

// RenderOptions configures the LaTeX → SVG stage.
type RenderOptions struct {
	Sandbox       string        // SandboxDocker or SandboxLocal
	DockerBinary  string        // defaults to "docker"
	Image         string        // container image with latex and dvisvgm
	Timeout       time.Duration // hard bound on the LaTeX compile
	Grace         time.Duration // extra time for container start-up and dvisvgm
	MaxConcurrent int64         // 0 means unlimited
}

// Renderer compiles the composed document and converts it to SVG.
type Renderer struct {
	runner runner.Runner
	opts   RenderOptions
	sem    *semaphore.Weighted
}

// NewRenderer creates a Renderer.
func NewRenderer(r runner.Runner, opts RenderOptions) *Renderer {
	if opts.DockerBinary == "" {
		opts.DockerBinary = "docker"
	}
	if opts.Sandbox == "" {
		opts.Sandbox = SandboxDocker
	}

	rd := &Renderer{runner: r, opts: opts}
	if opts.MaxConcurrent > 0 {
		rd.sem = semaphore.NewWeighted(opts.MaxConcurrent)
	}

	return rd
}

// Render runs the compile chain in ws and returns the path of the SVG.
// The tools' exit codes are not trusted; only the SVG file decides success.
func (r *Renderer) Render(ctx context.Context, ws *workspace.Workspace, scale model.Scale) (string, error) {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return "", renderError(fmt.Errorf("waiting for render slot: %w", err))
		}
		defer r.sem.Release(1)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout+r.opts.Grace)
	defer cancel()

	var timedOut bool
	switch r.opts.Sandbox {
	case SandboxLocal:
		timedOut = r.renderLocal(runCtx, ws, scale)
	default:
		timedOut = r.renderDocker(runCtx, ws, scale)
	}

	if !ws.Exists(VectorFile) {
		cause := ErrNoOutput
		if timedOut {
			cause = ErrRenderTimeout
		}
		zlog.Logger.Info().Str("job_id", ws.ID).Err(cause).Msg("render produced no svg")
		return "", renderError(cause)
	}

	return ws.Path(VectorFile), nil
}

// renderDocker reports whether the deadline expired.
func (r *Renderer) renderDocker(ctx context.Context, ws *workspace.Workspace, scale model.Scale) bool {
	name := containerName(ws.ID)

	args := []string{"run", "--rm", "-i", "--name", name, "--net=none"}
	if uid, gid := os.Getuid(), os.Getgid(); uid >= 0 && gid >= 0 {
		args = append(args, "--user", fmt.Sprintf("%d:%d", uid, gid))
	}
	args = append(args,
		"-v", ws.Dir+":/data",
		"-w", "/data",
		r.opts.Image,
		"/bin/sh", "-c", containerScript, "sh",
		formatSeconds(r.opts.Timeout),
		formatScale(scale),
	)

	_, _ = r.runner.Run(ctx, runner.Command{Name: r.opts.DockerBinary, Args: args})

	if ctx.Err() != nil {
		r.killContainer(name)
	}

	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// killContainer stops a container left running after its client was killed.
func (r *Renderer) killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.runner.Run(ctx, runner.Command{Name: r.opts.DockerBinary, Args: []string{"kill", name}})
	if err != nil {
		zlog.Logger.Debug().Err(err).Str("container", name).Msg("docker kill")
	}
}

// renderLocal reports whether the compile or conversion deadline expired.
func (r *Renderer) renderLocal(ctx context.Context, ws *workspace.Workspace, scale model.Scale) bool {
	compileCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	_, _ = r.runner.Run(compileCtx, runner.Command{
		Name: "latex",
		Args: []string{"-interaction", "nonstopmode", "-halt-on-error", "--no-shell-escape", DocumentFile},
		Dir:  ws.Dir,
	})

	if errors.Is(compileCtx.Err(), context.DeadlineExceeded) {
		return true
	}
	if !ws.Exists(DVIFile) {
		return false
	}

	_, _ = r.runner.Run(ctx, runner.Command{
		Name: "dvisvgm",
		Args: []string{"--no-fonts", "--scale=" + formatScale(scale), "--exact", DVIFile},
		Dir:  ws.Dir,
	})

	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func containerName(id string) string { return "latex2image-" + id }

func formatScale(s model.Scale) string {
	return strconv.FormatFloat(s.Multiplier, 'f', -1, 64)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
