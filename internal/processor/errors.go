package processor

import (
	"errors"
	"fmt"

	"github.com/aliskhannn/latex2image/internal/model"
)

// Causes attached to stage failures. They are logged, never shown to clients.
var (
	ErrRenderTimeout = errors.New("render timed out")
	ErrNoOutput      = errors.New("expected output file was not produced")
	ErrEmptyOutput   = errors.New("tool produced no output")
)

// Messages returned to clients.
const (
	msgRenderFailed = "Error converting LaTeX to image. Please ensure the input is valid."
	msgRasterFailed = "Error converting SVG file to %s image."
)

// StageError is the failure of a single pipeline stage. Message is safe to
// return to the client; Err carries the internal cause.
type StageError struct {
	Stage   model.State
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func renderError(cause error) *StageError {
	return &StageError{Stage: model.StateRendering, Message: msgRenderFailed, Err: cause}
}

func rasterError(f model.Format, cause error) *StageError {
	return &StageError{Stage: model.StateConverting, Message: fmt.Sprintf(msgRasterFailed, f), Err: cause}
}
