package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Store is the only component that reads or writes provider credentials.
// It never contacts a provider.
type Store struct {
	repo   Repository
	logger *slog.Logger
}

// NewStore creates a new credential store.
func NewStore(repo Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, logger: logger.With("component", "credential_store")}
}

// Get returns the live credential for (user, provider).
func (s *Store) Get(ctx context.Context, userID int64, provider string) (*Credential, error) {
	return s.repo.GetLive(ctx, userID, normalizeProvider(provider))
}

// Put stores a new live credential, retiring the previous one.
func (s *Store) Put(ctx context.Context, userID int64, provider, identity, secret string) (*Credential, error) {
	params := PutParams{
		UserID:   userID,
		Provider: normalizeProvider(provider),
		Identity: strings.TrimSpace(identity),
		Secret:   secret,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cred, err := s.repo.Replace(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.InfoContext(ctx, "credential stored", "user_id", userID, "provider", params.Provider, "credential_id", cred.ID)
	return cred, nil
}

// MarkRotated retires the live credential without deleting it.
// Scheduled refreshes skip the user for this provider until a new Put.
func (s *Store) MarkRotated(ctx context.Context, userID int64, provider string) error {
	provider = normalizeProvider(provider)

	rotated, err := s.repo.MarkRotated(ctx, userID, provider)
	if err != nil {
		return fmt.Errorf("failed to rotate credential: %w", err)
	}
	if !rotated {
		return ErrCredentialNotFound
	}

	s.logger.WarnContext(ctx, "credential marked for rotation", "user_id", userID, "provider", provider)
	return nil
}

// ResolveUser finds the local user that owns a provider identity.
func (s *Store) ResolveUser(ctx context.Context, provider, identity string) (int64, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return 0, ErrCredentialNotFound
	}
	return s.repo.FindUserByIdentity(ctx, normalizeProvider(provider), identity)
}

// ListLive returns every credential eligible for a scheduled refresh.
func (s *Store) ListLive(ctx context.Context) ([]*Credential, error) {
	return s.repo.ListLive(ctx)
}

// ListLiveForUser returns the user's live credentials across providers.
func (s *Store) ListLiveForUser(ctx context.Context, userID int64) ([]*Credential, error) {
	return s.repo.ListLiveByUser(ctx, userID)
}

func normalizeProvider(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
