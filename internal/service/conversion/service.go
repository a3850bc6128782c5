package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/latex2image/internal/idgen"
	"github.com/aliskhannn/latex2image/internal/latex"
	"github.com/aliskhannn/latex2image/internal/model"
	"github.com/aliskhannn/latex2image/internal/processor"
	"github.com/aliskhannn/latex2image/internal/validator"
	"github.com/aliskhannn/latex2image/internal/workspace"
)

// msgInternal is returned for failures that are not the caller's fault and
// have no stage-specific message.
const msgInternal = "Internal error while converting. Please try again."

// msgShuttingDown is returned for requests that arrive after Shutdown began.
const msgShuttingDown = "Service is shutting down. Please try again."

// recordTimeout bounds each recorder call.
const recordTimeout = 10 * time.Second

// workspaces allocates and removes per-job directories.
type workspaces interface {
	Acquire(id string) (*workspace.Workspace, error)
	Release(ws *workspace.Workspace)
}

// stages runs the external-tool stages.
type stages interface {
	Render(ctx context.Context, ws *workspace.Workspace, scale model.Scale) (string, error)
	Rasterize(ctx context.Context, ws *workspace.Workspace, svgPath string, f model.Format) (string, error)
	Compress(ctx context.Context, ws *workspace.Workspace, src string, f model.Format) (string, error)
}

// publisher makes the final artifact public.
type publisher interface {
	Publish(ctx context.Context, id string, f model.Format, src string) (string, error)
}

// Recorder receives the outcome of every accepted job (history, events).
type Recorder interface {
	Record(ctx context.Context, rec model.JobRecord) error
}

// Service runs the conversion pipeline:
// validate → prepare → render → (convert → compress)? → publish → cleanup.
type Service struct {
	workspaces workspaces
	stages     stages
	publisher  publisher
	recorders  []Recorder

	newID func() string
	now   func() time.Time

	// mu guards closing; a job is added to wg only while closing is false.
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// NewService creates a new Service. Recorders are optional.
func NewService(w workspaces, s stages, p publisher, recorders ...Recorder) *Service {
	return &Service{
		workspaces: w,
		stages:     s,
		publisher:  p,
		recorders:  recorders,
		newID:      idgen.New,
		now:        time.Now,
	}
}

// Convert validates raw and runs the pipeline. It never returns an error:
// every failure is turned into a result carrying a message, and the job
// workspace is removed before Convert returns.
func (s *Service) Convert(ctx context.Context, raw model.RawRequest) model.ConversionResult {
	if !s.admit() {
		zlog.Logger.Info().Msg("rejected request during shutdown")
		return model.Failure(msgShuttingDown)
	}
	defer s.wg.Done()

	req, err := validator.Validate(raw)
	if err != nil {
		zlog.Logger.Info().Err(err).Str("format", raw.Format).Str("scale", raw.Scale).Msg("rejected request")
		return model.Failure(err.Error())
	}

	start := s.now()
	job := &model.Job{ID: s.newID(), Request: req}

	url, failed, err := s.run(ctx, job)

	var result model.ConversionResult
	if err != nil {
		result = model.Failure(messageFor(err))
		zlog.Logger.Warn().Err(err).Str("job_id", job.ID).Str("stage", string(failed)).Msg("conversion failed")
	} else {
		result = model.Success(url)
		zlog.Logger.Info().Str("job_id", job.ID).Str("url", url).Dur("took", s.now().Sub(start)).Msg("conversion succeeded")
	}

	s.record(ctx, job, result, failed, start)

	return result
}

// run executes the stages in order. Cleanup of the workspace is deferred
// right after it is acquired so that it runs on every exit path, panics
// included. On failure it returns the state that failed.
func (s *Service) run(ctx context.Context, job *model.Job) (url string, failed model.State, err error) {
	req := job.Request
	state := model.StatePreparing

	ws, err := s.workspaces.Acquire(job.ID)
	if err != nil {
		return "", state, fmt.Errorf("acquire workspace: %w", err)
	}
	defer func() {
		s.transition(job, model.StateCleanup)
		s.workspaces.Release(ws)
		s.transition(job, model.StateDone)
	}()
	defer func() {
		if r := recover(); r != nil {
			url, failed, err = "", state, fmt.Errorf("panic in %s: %v", state, r)
		}
	}()

	job.Workspace = ws.Dir
	job.Document = latex.Compose(req.Markup)
	if err := ws.WriteFile(processor.DocumentFile, []byte(job.Document)); err != nil {
		return "", state, err
	}

	state = s.transition(job, model.StateRendering)
	final, err := s.stages.Render(ctx, ws, req.Scale)
	if err != nil {
		return "", state, err
	}

	if req.Format.IsRaster() {
		state = s.transition(job, model.StateConverting)
		raster, err := s.stages.Rasterize(ctx, ws, final, req.Format)
		if err != nil {
			return "", state, err
		}
		final = raster

		state = s.transition(job, model.StateCompressing)
		compressed, err := s.stages.Compress(ctx, ws, raster, req.Format)
		if err != nil {
			// Compression is an optimisation; publish the raster as is.
			zlog.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("compression failed, publishing uncompressed image")
		} else {
			final = compressed
		}
	}

	state = s.transition(job, model.StatePublishing)
	url, err = s.publisher.Publish(ctx, job.ID, req.Format, final)
	if err != nil {
		return "", state, fmt.Errorf("publish: %w", err)
	}

	return url, "", nil
}

func (s *Service) transition(job *model.Job, to model.State) model.State {
	zlog.Logger.Debug().Str("job_id", job.ID).Str("state", string(to)).Msg("job state")
	return to
}

// messageFor picks the client-facing text for a pipeline error.
func messageFor(err error) string {
	var stageErr *processor.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Message
	}
	return msgInternal
}

// record hands the outcome to the recorders in the background. Recorder
// failures are logged and never change the result.
func (s *Service) record(ctx context.Context, job *model.Job, result model.ConversionResult, failed model.State, start time.Time) {
	if len(s.recorders) == 0 {
		return
	}

	rec := model.JobRecord{
		ID:         job.ID,
		Format:     job.Request.Format.String(),
		Scale:      job.Request.Scale.Label,
		ImageURL:   result.ImageURL,
		Error:      result.Error,
		DurationMS: s.now().Sub(start).Milliseconds(),
		CreatedAt:  start.UTC(),
	}
	if result.OK() {
		rec.Status = model.StatusSucceeded
	} else {
		rec.Status = model.StatusFailed
		rec.FailedStage = failed
	}

	bg := context.WithoutCancel(ctx)
	for _, r := range s.recorders {
		s.wg.Add(1)
		go func(r Recorder) {
			defer s.wg.Done()

			ctx, cancel := context.WithTimeout(bg, recordTimeout)
			defer cancel()

			if err := r.Record(ctx, rec); err != nil {
				zlog.Logger.Error().Err(err).Str("job_id", rec.ID).Msg("failed to record job")
			}
		}(r)
	}
}

// admit registers a job unless the service is shutting down.
func (s *Service) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// Wait blocks until running jobs have finished and their records have been
// delivered.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Shutdown stops admitting jobs and waits for running ones, including their
// workspace removal and records, until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
