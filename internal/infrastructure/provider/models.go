package provider

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credentials identify a user to the provider.
type Credentials struct {
	Identity string
	Secret   string
}

// Account represents an account returned by an account listing.
type Account struct {
	ID              string `json:"id"`
	AuthorizationID string `json:"authorizationId"`
	InstitutionName string `json:"institutionName"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Currency        string `json:"currency"`
}

// Balance is the current balance of one account.
type Balance struct {
	AccountID string          `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// Position is one holding in a brokerage account.
type Position struct {
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

// Instrument is reference data for a tradable symbol.
type Instrument struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	AsOf     time.Time       `json:"asOf"`
}

// envelope is the success wrapper every provider endpoint uses.
type envelope[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data"`
	Timestamp string `json:"timestamp"`
}
