package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	UpsertFunc           func(ctx context.Context, params UpsertParams) (*ExternalAccount, error)
	GetByIDFunc          func(ctx context.Context, id string) (*ExternalAccount, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*ExternalAccount, error)
	ListByConnectionFunc func(ctx context.Context, connectionID string) ([]*ExternalAccount, error)
	UpdateBalanceFunc    func(ctx context.Context, params BalanceParams) error
	ReplacePositionsFunc func(ctx context.Context, accountID string, positions []Position) error
	ListPositionsFunc    func(ctx context.Context, accountID string) ([]Position, error)
}

func (m *MockRepository) Upsert(ctx context.Context, params UpsertParams) (*ExternalAccount, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return nil, nil
}

func (m *MockRepository) GetByID(ctx context.Context, id string) (*ExternalAccount, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, ErrAccountNotFound
}

func (m *MockRepository) ListByUserID(ctx context.Context, userID int64) ([]*ExternalAccount, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockRepository) ListByConnection(ctx context.Context, connectionID string) ([]*ExternalAccount, error) {
	if m.ListByConnectionFunc != nil {
		return m.ListByConnectionFunc(ctx, connectionID)
	}
	return nil, nil
}

func (m *MockRepository) UpdateBalance(ctx context.Context, params BalanceParams) error {
	if m.UpdateBalanceFunc != nil {
		return m.UpdateBalanceFunc(ctx, params)
	}
	return nil
}

func (m *MockRepository) ReplacePositions(ctx context.Context, accountID string, positions []Position) error {
	if m.ReplacePositionsFunc != nil {
		return m.ReplacePositionsFunc(ctx, accountID, positions)
	}
	return nil
}

func (m *MockRepository) ListPositions(ctx context.Context, accountID string) ([]Position, error) {
	if m.ListPositionsFunc != nil {
		return m.ListPositionsFunc(ctx, accountID)
	}
	return nil, nil
}

func TestObserve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		params  UpsertParams
		mock    func() *MockRepository
		wantErr bool
		errType error
	}{
		{
			name:   "Success normalizes case",
			params: UpsertParams{ID: "acc-1", ConnectionID: "auth-1", UserID: 1, Name: "Brokerage", AccountType: "brokerage", Currency: "usd"},
			mock: func() *MockRepository {
				return &MockRepository{
					UpsertFunc: func(ctx context.Context, params UpsertParams) (*ExternalAccount, error) {
						if params.AccountType != "BROKERAGE" || params.Currency != "USD" {
							t.Errorf("params not normalized: %+v", params)
						}
						return &ExternalAccount{ID: params.ID, ConnectionID: params.ConnectionID, UserID: params.UserID}, nil
					},
				}
			},
		},
		{
			name:   "Missing parent connection",
			params: UpsertParams{ID: "acc-1", ConnectionID: "auth-x", UserID: 1},
			mock: func() *MockRepository {
				return &MockRepository{
					UpsertFunc: func(ctx context.Context, params UpsertParams) (*ExternalAccount, error) {
						return nil, ErrConnectionMissing
					},
				}
			},
			wantErr: true,
			errType: ErrConnectionMissing,
		},
		{
			name:    "Invalid Currency",
			params:  UpsertParams{ID: "acc-1", ConnectionID: "auth-1", UserID: 1, Currency: "INVALID"},
			mock:    func() *MockRepository { return &MockRepository{} },
			wantErr: true,
			errType: ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(tt.mock())
			got, err := service.Observe(ctx, tt.params)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Observe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.errType != nil && !errors.Is(err, tt.errType) {
				t.Errorf("Observe() error = %v, want %v", err, tt.errType)
			}
			if !tt.wantErr && got == nil {
				t.Error("Observe() returned nil account")
			}
		})
	}
}

func TestRecordBalance(t *testing.T) {
	var captured BalanceParams
	repo := &MockRepository{
		UpdateBalanceFunc: func(ctx context.Context, params BalanceParams) error {
			captured = params
			return nil
		},
	}
	service := NewService(repo)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	err := service.RecordBalance(context.Background(), "acc-1", decimal.RequireFromString("100.00"), "usd")
	if err != nil {
		t.Fatalf("RecordBalance() error = %v", err)
	}
	if !captured.Amount.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Amount = %s, want 100.00", captured.Amount)
	}
	if captured.Currency != "USD" || !captured.SyncedAt.Equal(fixed) {
		t.Errorf("unexpected params: %+v", captured)
	}

	if err := service.RecordBalance(context.Background(), "", decimal.Zero, "USD"); err == nil {
		t.Error("RecordBalance() expected error for empty account ID")
	}
	if err := service.RecordBalance(context.Background(), "acc-1", decimal.Zero, "QQQ"); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("RecordBalance() error = %v, want %v", err, ErrInvalidCurrency)
	}
}

func TestRecordPositions(t *testing.T) {
	var got []Position
	repo := &MockRepository{
		ReplacePositionsFunc: func(ctx context.Context, accountID string, positions []Position) error {
			got = positions
			return nil
		},
	}
	service := NewService(repo)

	err := service.RecordPositions(context.Background(), "acc-9", []Position{
		{Symbol: " aapl ", Quantity: decimal.NewFromInt(2), Price: decimal.RequireFromString("190.10")},
	})
	if err != nil {
		t.Fatalf("RecordPositions() error = %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "AAPL" || got[0].AccountID != "acc-9" || got[0].UpdatedAt.IsZero() {
		t.Errorf("unexpected positions: %+v", got)
	}
}

func TestGetAccount_Ownership(t *testing.T) {
	repo := &MockRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*ExternalAccount, error) {
			return &ExternalAccount{ID: id, UserID: 1}, nil
		},
	}
	service := NewService(repo)

	if _, err := service.GetAccount(context.Background(), "acc-1", 1); err != nil {
		t.Errorf("GetAccount() owner error = %v", err)
	}
	if _, err := service.GetAccount(context.Background(), "acc-1", 2); !errors.Is(err, ErrForbidden) {
		t.Errorf("GetAccount() error = %v, want %v", err, ErrForbidden)
	}
	if _, err := service.ListPositions(context.Background(), "acc-1", 2); !errors.Is(err, ErrForbidden) {
		t.Errorf("ListPositions() error = %v, want %v", err, ErrForbidden)
	}
}

func TestListAccountsByUserID_InvalidUser(t *testing.T) {
	service := NewService(&MockRepository{})

	if _, err := service.ListAccountsByUserID(context.Background(), 0); err == nil {
		t.Error("ListAccountsByUserID() expected error for user 0")
	}
}
