package refresh

import "context"

// RunRepository persists run summaries.
type RunRepository interface {
	Save(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}
