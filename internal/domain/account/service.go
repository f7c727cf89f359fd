package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Observe records that the provider listed this account. Existing rows are
// updated in place; nothing is ever removed here.
func (s *Service) Observe(ctx context.Context, params UpsertParams) (*ExternalAccount, error) {
	params.AccountType = strings.ToUpper(params.AccountType)
	params.Currency = strings.ToUpper(params.Currency)

	if err := params.Validate(); err != nil {
		return nil, err
	}

	return s.repo.Upsert(ctx, params)
}

// RecordBalance stores a fetched balance for an account.
func (s *Service) RecordBalance(ctx context.Context, accountID string, amount decimal.Decimal, currency string) error {
	if accountID == "" {
		return errors.New("account ID is required")
	}
	currency = strings.ToUpper(currency)
	if currency != "" && !IsValidCurrency(currency) {
		return ErrInvalidCurrency
	}

	return s.repo.UpdateBalance(ctx, BalanceParams{
		AccountID: accountID,
		Amount:    amount,
		Currency:  currency,
		SyncedAt:  s.now(),
	})
}

// RecordPositions replaces the account's holdings.
func (s *Service) RecordPositions(ctx context.Context, accountID string, positions []Position) error {
	if accountID == "" {
		return errors.New("account ID is required")
	}

	now := s.now()
	for i := range positions {
		positions[i].AccountID = accountID
		positions[i].Symbol = strings.ToUpper(strings.TrimSpace(positions[i].Symbol))
		positions[i].UpdatedAt = now
	}

	return s.repo.ReplacePositions(ctx, accountID, positions)
}

// GetAccount retrieves an account by ID and verifies user ownership
func (s *Service) GetAccount(ctx context.Context, accountID string, userID int64) (*ExternalAccount, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// Business rule: verify ownership
	if account.UserID != userID {
		return nil, ErrForbidden
	}

	return account, nil
}

// ListAccountsByUserID retrieves all accounts for a specific user
func (s *Service) ListAccountsByUserID(ctx context.Context, userID int64) ([]*ExternalAccount, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}

	return s.repo.ListByUserID(ctx, userID)
}

// ListPositions returns an account's holdings after verifying ownership.
func (s *Service) ListPositions(ctx context.Context, accountID string, userID int64) ([]Position, error) {
	if _, err := s.GetAccount(ctx, accountID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListPositions(ctx, accountID)
}
