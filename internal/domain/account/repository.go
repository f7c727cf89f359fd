package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Upsert creates or updates an account. Returns ErrConnectionMissing when
	// the parent connection row does not exist.
	Upsert(ctx context.Context, params UpsertParams) (*ExternalAccount, error)

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id string) (*ExternalAccount, error)

	// ListByUserID retrieves all accounts for a specific user
	ListByUserID(ctx context.Context, userID int64) ([]*ExternalAccount, error)

	// ListByConnection retrieves all accounts under one connection
	ListByConnection(ctx context.Context, connectionID string) ([]*ExternalAccount, error)

	// UpdateBalance stores the latest balance and marks the initial sync done
	UpdateBalance(ctx context.Context, params BalanceParams) error

	// ReplacePositions swaps the account's holdings and stamps last_holdings_sync_at
	ReplacePositions(ctx context.Context, accountID string, positions []Position) error

	// ListPositions returns the account's current holdings
	ListPositions(ctx context.Context, accountID string) ([]Position, error)
}
