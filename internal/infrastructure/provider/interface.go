package provider

import (
	"context"
)

// ClientInterface defines the methods required from an aggregation provider.
// Every failed call returns a *providererr.ProviderError.
type ClientInterface interface {
	Name() string
	ListAccounts(ctx context.Context, creds Credentials) ([]Account, error)
	GetBalance(ctx context.Context, creds Credentials, accountID string) (*Balance, error)
	GetPositions(ctx context.Context, creds Credentials, accountID string) ([]Position, error)
	GetInstrument(ctx context.Context, symbol string) (*Instrument, error)
}
