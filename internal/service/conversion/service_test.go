package conversion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/processor"
	"github.com/aliskhannn/latex2image/internal/storage/file"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

// fakeStages writes the files the real tools would produce. Failure knobs
// turn individual stages off.
type fakeStages struct {
	mu sync.Mutex

	renderFails   bool
	rasterFails   bool
	compressFails bool
	panicIn       model.State

	calls      []model.State
	workspaces []string
}

func (f *fakeStages) note(s model.State, ws *workspace.Workspace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	f.workspaces = append(f.workspaces, ws.Dir)
}

func (f *fakeStages) Render(_ context.Context, ws *workspace.Workspace, _ model.Scale) (string, error) {
	f.note(model.StateRendering, ws)
	if f.panicIn == model.StateRendering {
		panic("boom")
	}
	if f.renderFails {
		return "", &processor.StageError{
			Stage:   model.StateRendering,
			Message: "Error converting LaTeX to image. Please ensure the input is valid.",
			Err:     processor.ErrNoOutput,
		}
	}
	return ws.Path(processor.VectorFile), ws.WriteFile(processor.VectorFile, []byte("<svg/>"))
}

func (f *fakeStages) Rasterize(_ context.Context, ws *workspace.Workspace, _ string, fm model.Format) (string, error) {
	f.note(model.StateConverting, ws)
	if f.rasterFails {
		return "", &processor.StageError{
			Stage:   model.StateConverting,
			Message: fmt.Sprintf("Error converting SVG file to %s image.", fm),
			Err:     processor.ErrNoOutput,
		}
	}
	name := processor.RasterFile(fm)
	return ws.Path(name), ws.WriteFile(name, []byte("raster"))
}

func (f *fakeStages) Compress(_ context.Context, ws *workspace.Workspace, _ string, fm model.Format) (string, error) {
	f.note(model.StateCompressing, ws)
	if f.compressFails {
		return "", errors.New("imagemin: executable not found")
	}
	name := processor.CompressedFile(fm)
	return ws.Path(name), ws.WriteFile(name, []byte("small"))
}

func (f *fakeStages) stages() []model.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.State(nil), f.calls...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.JobRecord
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rec model.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, model.Format, string) (string, error) {
	return "", errors.New("disk full")
}

type env struct {
	svc       *Service
	stages    *fakeStages
	root      string
	outputDir string
}

func newEnv(t *testing.T, st *fakeStages, recorders ...Recorder) *env {
	t.Helper()

	fs := afero.NewOsFs()
	dir := t.TempDir()

	ws, err := workspace.NewManager(fs, filepath.Join(dir, "temp"))
	require.NoError(t, err)

	pub, err := file.NewLocalPublisher(fs, filepath.Join(dir, "output"), "output/")
	require.NoError(t, err)

	return &env{
		svc:       NewService(ws, st, pub, recorders...),
		stages:    st,
		root:      ws.Root(),
		outputDir: pub.Dir(),
	}
}

// assertNoWorkspaces checks that every job directory was removed.
func (e *env) assertNoWorkspaces(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(e.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func raw(markup, format, scale string) model.RawRequest {
	return model.RawRequest{Markup: markup, Format: format, Scale: scale}
}

func TestConvertVector(t *testing.T) {
	e := newEnv(t, &fakeStages{})

	res := e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))

	require.True(t, res.OK(), res.Error)
	assert.Empty(t, res.Error)
	assert.Regexp(t, `^output/img-[0-9a-f]{32}\.svg$`, res.ImageURL)
	assert.Equal(t, []model.State{model.StateRendering}, e.stages.stages())

	_, err := os.Stat(filepath.Join(e.outputDir, strings.TrimPrefix(res.ImageURL, "output/")))
	assert.NoError(t, err)
	e.assertNoWorkspaces(t)
}

func TestConvertRaster(t *testing.T) {
	e := newEnv(t, &fakeStages{})

	res := e.svc.Convert(context.Background(), raw("x=1", "jpg", "50%"))

	require.True(t, res.OK(), res.Error)
	assert.True(t, strings.HasSuffix(res.ImageURL, ".jpg"))
	assert.Equal(t, []model.State{model.StateRendering, model.StateConverting, model.StateCompressing}, e.stages.stages())

	data, err := os.ReadFile(filepath.Join(e.outputDir, strings.TrimPrefix(res.ImageURL, "output/")))
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))
	e.assertNoWorkspaces(t)
}

func TestConvertValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		req  model.RawRequest
		want string
	}{
		{"no markup", raw("", "SVG", "100%"), "No LaTeX input provided"},
		{"blank markup", raw("   ", "PNG", "10%"), "No LaTeX input provided"},
		{"bad scale", raw("x", "SVG", "42%"), "Invalid scale"},
		{"bad format", raw("x", "TIFF", "100%"), "Invalid image format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, &fakeStages{})

			res := e.svc.Convert(context.Background(), tt.req)

			assert.Equal(t, model.ConversionResult{Error: tt.want}, res)
			assert.Empty(t, e.stages.stages(), "no stage may run")
			e.assertNoWorkspaces(t)
		})
	}
}

func TestConvertStageFailuresCleanUp(t *testing.T) {
	tests := []struct {
		name   string
		stages *fakeStages
		format string
		want   string
	}{
		{
			name:   "render",
			stages: &fakeStages{renderFails: true},
			format: "PNG",
			want:   "Error converting LaTeX to image. Please ensure the input is valid.",
		},
		{
			name:   "raster",
			stages: &fakeStages{rasterFails: true},
			format: "PNG",
			want:   "Error converting SVG file to PNG image.",
		},
		{
			name:   "panic",
			stages: &fakeStages{panicIn: model.StateRendering},
			format: "SVG",
			want:   msgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.stages)

			res := e.svc.Convert(context.Background(), raw(`a \\ b`, tt.format, "100%"))

			assert.Equal(t, model.ConversionResult{Error: tt.want}, res)
			e.assertNoWorkspaces(t)

			entries, err := os.ReadDir(e.outputDir)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing is published on failure")
		})
	}
}

func TestConvertCompressionFallsBack(t *testing.T) {
	e := newEnv(t, &fakeStages{compressFails: true})

	res := e.svc.Convert(context.Background(), raw("x", "PNG", "100%"))
	require.True(t, res.OK(), res.Error)

	data, err := os.ReadFile(filepath.Join(e.outputDir, strings.TrimPrefix(res.ImageURL, "output/")))
	require.NoError(t, err)
	assert.Equal(t, "raster", string(data))
	e.assertNoWorkspaces(t)
}

func TestConvertPublishFailure(t *testing.T) {
	st := &fakeStages{}
	dir := t.TempDir()

	ws, err := workspace.NewManager(afero.NewOsFs(), dir)
	require.NoError(t, err)

	svc := NewService(ws, st, failingPublisher{})
	res := svc.Convert(context.Background(), raw("x", "SVG", "100%"))

	assert.Equal(t, model.ConversionResult{Error: msgInternal}, res)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertWritesComposedDocument(t *testing.T) {
	var doc string

	st := &fakeStages{}
	e := newEnv(t, st)
	e.svc.stages = stagesFunc{
		fakeStages: st,
		render: func(ws *workspace.Workspace) {
			data, err := os.ReadFile(ws.Path(processor.DocumentFile))
			require.NoError(t, err)
			doc = string(data)
		},
	}

	res := e.svc.Convert(context.Background(), raw(`a \\ b`, "SVG", "100%"))
	require.True(t, res.OK())

	assert.Contains(t, doc, `\begin{align*}`)
	assert.Contains(t, doc, `&a \\& b`)
}

// stagesFunc runs a hook before delegating the render to fakeStages.
type stagesFunc struct {
	*fakeStages
	render func(ws *workspace.Workspace)
}

func (s stagesFunc) Render(ctx context.Context, ws *workspace.Workspace, scale model.Scale) (string, error) {
	s.render(ws)
	return s.fakeStages.Render(ctx, ws, scale)
}

func TestConvertConcurrentJobsAreIsolated(t *testing.T) {
	const n = 16

	st := &fakeStages{}
	e := newEnv(t, st)

	var wg sync.WaitGroup
	results := make([]model.ConversionResult, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.svc.Convert(context.Background(), raw("x=1", "PNG", "100%"))
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent conversions did not finish")
	}

	urls := make(map[string]struct{}, n)
	for _, res := range results {
		require.True(t, res.OK(), res.Error)
		urls[res.ImageURL] = struct{}{}
	}
	assert.Len(t, urls, n)

	dirs := make(map[string]struct{})
	for _, d := range st.workspaces {
		dirs[d] = struct{}{}
	}
	assert.Len(t, dirs, n)

	e.assertNoWorkspaces(t)
}

func TestConvertSameRequestTwice(t *testing.T) {
	e := newEnv(t, &fakeStages{})

	a := e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))
	b := e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))

	require.True(t, a.OK())
	require.True(t, b.OK())
	assert.NotEqual(t, a.ImageURL, b.ImageURL)
}

func TestConvertRecordsOutcome(t *testing.T) {
	ok := &fakeRecorder{}
	failing := &fakeRecorder{err: errors.New("broker down")}

	e := newEnv(t, &fakeStages{rasterFails: true}, ok, failing)

	res := e.svc.Convert(context.Background(), raw("x", "JPG", "25%"))
	e.svc.Wait()

	assert.Equal(t, "Error converting SVG file to JPG image.", res.Error)

	for _, r := range []*fakeRecorder{ok, failing} {
		require.Len(t, r.records, 1)
		rec := r.records[0]
		assert.Equal(t, model.StatusFailed, rec.Status)
		assert.Equal(t, model.StateConverting, rec.FailedStage)
		assert.Equal(t, "JPG", rec.Format)
		assert.Equal(t, "25%", rec.Scale)
		assert.Equal(t, res.Error, rec.Error)
		assert.Len(t, rec.ID, 32)
	}
}

func TestConvertRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	e := newEnv(t, &fakeStages{}, rec)

	res := e.svc.Convert(context.Background(), raw("x", "SVG", "100%"))
	e.svc.Wait()

	require.Len(t, rec.records, 1)
	assert.Equal(t, model.StatusSucceeded, rec.records[0].Status)
	assert.Equal(t, res.ImageURL, rec.records[0].ImageURL)
	assert.Empty(t, rec.records[0].FailedStage)
}

func TestConvertRejectedRequestsAreNotRecorded(t *testing.T) {
	rec := &fakeRecorder{}
	e := newEnv(t, &fakeStages{}, rec)

	e.svc.Convert(context.Background(), raw("", "SVG", "100%"))
	e.svc.Wait()

	assert.Empty(t, rec.records)
}

// failingRemoveFs is an OS file system whose RemoveAll always fails.
type failingRemoveFs struct {
	afero.Fs
}

func (failingRemoveFs) RemoveAll(string) error { return assert.AnError }

func TestConvertSucceedsWhenWorkspaceRemovalFails(t *testing.T) {
	dir := t.TempDir()

	ws, err := workspace.NewManager(failingRemoveFs{afero.NewOsFs()}, filepath.Join(dir, "temp"))
	require.NoError(t, err)

	pub, err := file.NewLocalPublisher(afero.NewOsFs(), filepath.Join(dir, "output"), "output/")
	require.NoError(t, err)

	svc := NewService(ws, &fakeStages{}, pub)
	res := svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))

	require.True(t, res.OK(), res.Error)
	assert.Empty(t, res.Error)
	assert.Regexp(t, `^output/img-[0-9a-f]{32}\.svg$`, res.ImageURL)
}

func (s *Service) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// blockRender makes every render wait for release after signalling started.
func blockRender(e *env) (started, release chan struct{}) {
	started = make(chan struct{})
	release = make(chan struct{})

	var once sync.Once
	e.svc.stages = stagesFunc{
		fakeStages: e.stages,
		render: func(*workspace.Workspace) {
			once.Do(func() { close(started) })
			<-release
		},
	}

	return started, release
}

func TestShutdownWaitsForRunningJobs(t *testing.T) {
	rec := &fakeRecorder{}
	e := newEnv(t, &fakeStages{}, rec)
	started, release := blockRender(e)

	results := make(chan model.ConversionResult, 1)
	go func() {
		results <- e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))
	}()
	<-started

	shutdown := make(chan error, 1)
	go func() { shutdown <- e.svc.Shutdown(context.Background()) }()

	require.Eventually(t, e.svc.isClosing, time.Second, 5*time.Millisecond)

	late := e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))
	assert.Equal(t, model.ConversionResult{Error: msgShuttingDown}, late)

	select {
	case <-shutdown:
		t.Fatal("shutdown returned while a job was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-shutdown:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return after the job finished")
	}

	res := <-results
	require.True(t, res.OK(), res.Error)
	e.assertNoWorkspaces(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.records, 1, "records are delivered before shutdown returns")
	assert.Equal(t, res.ImageURL, rec.records[0].ImageURL)
}

func TestShutdownHonoursDeadline(t *testing.T) {
	e := newEnv(t, &fakeStages{})
	started, release := blockRender(e)

	go e.svc.Convert(context.Background(), raw("x=1", "SVG", "100%"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.svc.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	e.svc.Wait()
	e.assertNoWorkspaces(t)
}
