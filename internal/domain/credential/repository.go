package credential

import "context"

// Repository defines the interface for credential persistence.
// Implementations must keep at most one live row per (user, provider).
type Repository interface {
	// GetLive returns ErrCredentialNotFound when the user has no live credential.
	GetLive(ctx context.Context, userID int64, provider string) (*Credential, error)

	// Replace retires the current live credential, if any, and inserts the new one atomically.
	Replace(ctx context.Context, params PutParams) (*Credential, error)

	// MarkRotated retires the live credential. Returns false when none was live.
	MarkRotated(ctx context.Context, userID int64, provider string) (bool, error)

	// FindUserByIdentity prefers the live credential and falls back to the most recently rotated one.
	FindUserByIdentity(ctx context.Context, provider, identity string) (int64, error)

	ListLive(ctx context.Context) ([]*Credential, error)
	ListLiveByUser(ctx context.Context, userID int64) ([]*Credential, error)
}
