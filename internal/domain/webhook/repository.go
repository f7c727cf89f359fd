package webhook

import "context"

// Repository is the durable webhook event log.
type Repository interface {
	// Record inserts the event unless (provider, event_id) is already logged.
	// inserted is false for duplicates.
	Record(ctx context.Context, rec Record) (id int64, inserted bool, err error)

	// MarkProcessed stamps processed_at with the outcome and an optional error.
	MarkProcessed(ctx context.Context, id int64, outcome Outcome, procErr string) error

	// ListRecent returns the latest events for a provider, newest first.
	ListRecent(ctx context.Context, provider string, limit int) ([]*Record, error)
}
