package model

import "time"

// State is a step of the conversion pipeline.
type State string

const (
	StateValidating  State = "validating"
	StatePreparing   State = "preparing"
	StateRendering   State = "rendering"
	StateConverting  State = "converting"
	StateCompressing State = "compressing"
	StatePublishing  State = "publishing"
	StateCleanup     State = "cleanup"
	StateDone        State = "done"
)

// Job holds the working state of one accepted conversion.
type Job struct {
	ID        string
	Workspace string // absolute path of the job directory
	Document  string // composed LaTeX source
	Request   ConversionRequest
}

// Job statuses stored in history.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobRecord is the outcome of a job as kept in history and sent as an event.
type JobRecord struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	Scale       string    `json:"scale"`
	Status      string    `json:"status"`
	ImageURL    string    `json:"image_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	FailedStage State     `json:"failed_stage,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}
