package processor

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/runner"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

func TestExternalCompressor(t *testing.T) {
	ws := newWorkspace(t, "c1")
	src := ws.Path(RasterFile(model.FormatPNG))

	fr := &fakeRunner{fn: func(context.Context, runner.Command) (runner.Output, error) {
		return runner.Output{Stdout: []byte("small")}, nil
	}}

	path, err := NewExternalCompressor(fr, "", 0).Compress(context.Background(), ws, src, model.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, ws.Path("equation_compressed.png"), path)

	data, err := afero.ReadFile(ws.Fs(), path)
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))

	calls := fr.commands()
	require.Len(t, calls, 1)
	assert.Equal(t, "imagemin", calls[0].Name)
	assert.Equal(t, []string{src}, calls[0].Args)
}

func TestExternalCompressorFailures(t *testing.T) {
	tests := []struct {
		name    string
		out     runner.Output
		err     error
		wantErr error
	}{
		{"tool error", runner.Output{}, runner.ErrNotFound, runner.ErrNotFound},
		{"empty output", runner.Output{}, nil, ErrEmptyOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t, "cf")
			fr := &fakeRunner{fn: func(context.Context, runner.Command) (runner.Output, error) {
				return tt.out, tt.err
			}}

			_, err := NewExternalCompressor(fr, "imagemin", 0).Compress(context.Background(), ws, "x.png", model.FormatPNG)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
			assert.False(t, ws.Exists(CompressedFile(model.FormatPNG)))
		})
	}
}

func writeImage(t *testing.T, ws *workspace.Workspace, f model.Format) string {
	t.Helper()

	img := imaging.New(64, 32, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	enc := imaging.PNG
	if f == model.FormatJPG {
		enc = imaging.JPEG
	}

	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, enc, imaging.JPEGQuality(100), imaging.PNGCompressionLevel(png.NoCompression)))
	require.NoError(t, ws.WriteFile(RasterFile(f), buf.Bytes()))

	return ws.Path(RasterFile(f))
}

func TestNativeCompressor(t *testing.T) {
	for _, f := range []model.Format{model.FormatPNG, model.FormatJPG} {
		t.Run(f.String(), func(t *testing.T) {
			ws := newWorkspace(t, "n"+f.Ext())
			src := writeImage(t, ws, f)

			path, err := NativeCompressor{JPEGQuality: 60}.Compress(context.Background(), ws, src, f)
			require.NoError(t, err)

			in, err := ws.Fs().Open(path)
			require.NoError(t, err)
			defer in.Close()

			img, err := imaging.Decode(in)
			require.NoError(t, err)
			assert.Equal(t, 64, img.Bounds().Dx())
			assert.Equal(t, 32, img.Bounds().Dy())
		})
	}
}

func TestNativeCompressorRejectsGarbage(t *testing.T) {
	ws := newWorkspace(t, "garbage")
	require.NoError(t, ws.WriteFile("equation.png", []byte("not an image")))

	_, err := NativeCompressor{}.Compress(context.Background(), ws, ws.Path("equation.png"), model.FormatPNG)
	assert.Error(t, err)
}

func TestNopCompressor(t *testing.T) {
	path, err := NopCompressor{}.Compress(context.Background(), nil, "/work/x/equation.png", model.FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, "/work/x/equation.png", path)
}

func TestNewSelectsCompressor(t *testing.T) {
	fr := &fakeRunner{}

	assert.IsType(t, NativeCompressor{}, New(fr, Options{CompressDriver: CompressNative}).compressor)
	assert.IsType(t, NopCompressor{}, New(fr, Options{CompressDriver: CompressNone}).compressor)
	assert.IsType(t, &ExternalCompressor{}, New(fr, Options{}).compressor)
}

func TestExternalCompressorHungToolIsBounded(t *testing.T) {
	ws := newWorkspace(t, "chang")
	fr := &fakeRunner{fn: func(ctx context.Context, _ runner.Command) (runner.Output, error) {
		<-ctx.Done()
		return runner.Output{}, ctx.Err()
	}}

	start := time.Now()
	_, err := NewExternalCompressor(fr, "", 50*time.Millisecond).Compress(context.Background(), ws, "x.png", model.FormatPNG)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewPassesStageTimeouts(t *testing.T) {
	p := New(&fakeRunner{}, Options{RasterTimeout: time.Second, CompressTimeout: 2 * time.Second})

	assert.Equal(t, time.Second, p.rasterizer.timeout)
	c, ok := p.compressor.(*ExternalCompressor)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, c.timeout)
}
