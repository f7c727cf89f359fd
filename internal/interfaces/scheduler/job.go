package scheduler

import "context"

// Job is a unit of work executed by the worker pool.
type Job interface {
	// Execute runs the job. The context carries the per-job timeout.
	Execute(ctx context.Context) error

	// UserID is the local user the job works for, or 0.
	UserID() int64

	// Description is used for logging.
	Description() string
}
