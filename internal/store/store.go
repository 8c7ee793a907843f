// Package store persists runs and job runs. Two implementations share the
// interface: an ephemeral in-memory store for one-shot CLI runs and tests,
// and a Postgres store for server mode where run history survives restarts.
package store

import (
	"context"
	"errors"

	"github.com/vk/gridci/internal/model"
)

// ErrNotFound is returned when a requested run or job run does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary of the orchestrator. Every run and job
// state transition flows through here.
type Store interface {
	// CreateRun persists a new run and assigns its ID.
	CreateRun(ctx context.Context, run *model.Run) error
	// GetRun fetches one run by ID.
	GetRun(ctx context.Context, id int64) (*model.Run, error)
	// ListRuns returns runs newest first, at most limit entries.
	ListRuns(ctx context.Context, limit int) ([]*model.Run, error)
	// UpdateRunStatus transitions a run. StartedAt is stamped on the move
	// to running, FinishedAt on any terminal status.
	UpdateRunStatus(ctx context.Context, id int64, status model.Status) error
	// NextRunNumber allocates the next per-workflow run number.
	NextRunNumber(ctx context.Context, workflowName string) (int64, error)

	// CreateJobRun persists a new job run and assigns its ID.
	CreateJobRun(ctx context.Context, jr *model.JobRun) error
	// UpdateJobRun writes back a job run's mutable fields: status, outputs,
	// error, attempts, and timestamps.
	UpdateJobRun(ctx context.Context, jr *model.JobRun) error
	// GetJobRuns returns the job runs of one run in creation order.
	GetJobRuns(ctx context.Context, runID int64) ([]*model.JobRun, error)

	// CancelPendingRuns cancels every pending run in the concurrency group
	// except the one identified by exceptID (the run doing the superseding)
	// and returns the IDs it cancelled.
	CancelPendingRuns(ctx context.Context, group string, exceptID int64) ([]int64, error)

	// Close releases any underlying resources.
	Close() error
}
