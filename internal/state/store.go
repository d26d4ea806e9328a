// Package state tracks pipeline run history in a local SQLite database.
package state

import "time"

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID          string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	Stages      []StageRecord
}

// StageRecord is the outcome of one pipeline stage within a run.
type StageRecord struct {
	RunID       string
	Stage       string
	RowsWritten int64
	Duration    time.Duration
	RecordedAt  time.Time
}

// Store persists run history.
type Store interface {
	Open(path string) error
	Close() error

	CreateRun() (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error
	RecordStage(runID, stage string, rowsWritten int64, duration time.Duration) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
}
