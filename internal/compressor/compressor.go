package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photo-resizer-go/internal/planner"
)

// ErrNotStarted marks jobs that were never run because an earlier job
// failed in fail-fast mode.
var ErrNotStarted = errors.New("job not started")

// Resize backends.
const (
	BackendExternal = "external"
	BackendBuiltin  = "builtin"
)

// ProcessResult describes the outcome of a single job.
type ProcessResult struct {
	InputPath        string
	InputRel         string
	OutputPath       string
	OutputRel        string
	TargetName       string
	TargetIndex      int
	InputSize        int64
	OutputSize       int64
	CompressionRatio float64
	Skipped          bool
	Err              error
	StartedAt        time.Time
	FinishedAt       time.Time
}

// JobError carries enough context to diagnose a failed job.
type JobError struct {
	InputPath  string
	TargetName string
	Stage      string
	Err        error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("%s [%s]: %s: %v", e.InputPath, e.TargetName, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Progress receives one call per finished job. Implementations must be safe
// for concurrent use.
type Progress interface {
	JobDone(result ProcessResult)
}

// Compressor executes planned jobs.
type Compressor interface {
	// Execute runs all jobs and returns one result per job in job order.
	Execute(ctx context.Context, jobs []planner.Job) ([]ProcessResult, error)
}
