package connection

import (
	"context"
	"time"
)

// Repository defines the interface for connection persistence.
// Only StateMachine writes through it.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Connection, error)
	ListByUser(ctx context.Context, userID int64) ([]*Connection, error)
	ListAll(ctx context.Context) ([]*Connection, error)

	// Upsert inserts or overwrites the state columns. Returns ErrOwnerMismatch
	// when the row exists under a different user.
	Upsert(ctx context.Context, params UpsertParams) (*Connection, error)

	// InsertPending creates the row only when it does not exist yet.
	InsertPending(ctx context.Context, ref Ref) (*Connection, error)

	// Touch refreshes last_synced_at without touching status.
	Touch(ctx context.Context, id string, at time.Time) error

	// Delete removes the row; accounts cascade.
	Delete(ctx context.Context, id string) error
}
