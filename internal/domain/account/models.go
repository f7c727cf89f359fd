package account

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// Account types reported by aggregation providers
	accountTypes = map[string]struct{}{
		"BANK":       {},
		"CREDIT":     {},
		"INVESTMENT": {},
		"BROKERAGE":  {},
		"RETIREMENT": {},
	}
	// Common ISO 4217 currency codes
	validCurrencies = map[string]struct{}{
		"BRL": {}, "USD": {}, "EUR": {}, "GBP": {}, "JPY": {},
		"CHF": {}, "CAD": {}, "AUD": {}, "NZD": {}, "CNY": {},
		"INR": {}, "MXN": {}, "ZAR": {}, "SEK": {}, "NOK": {},
		"DKK": {}, "PLN": {}, "TRY": {}, "KRW": {}, "SGD": {},
		"HKD": {}, "ARS": {}, "CLP": {}, "COP": {},
	}
)

// Domain errors
var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrConnectionMissing  = errors.New("parent connection does not exist")
	ErrOwnerMismatch      = errors.New("account belongs to another user")
	ErrInvalidAccountType = errors.New("invalid account type")
	ErrInvalidCurrency    = errors.New("valid ISO 4217 currency is required")
	ErrForbidden          = errors.New("access forbidden")
)

// ExternalAccount is the local mirror of one provider account.
// Rows are never deleted because a listing omitted them; they go away only
// with their parent connection.
type ExternalAccount struct {
	ID                     string          `json:"id"`
	ConnectionID           string          `json:"connectionId"`
	UserID                 int64           `json:"userId"`
	Name                   string          `json:"name"`
	AccountType            string          `json:"accountType"`
	Balance                decimal.Decimal `json:"balance"`
	Currency               string          `json:"currency"`
	LastHoldingsSyncAt     *time.Time      `json:"lastHoldingsSyncAt,omitempty"`
	LastTransactionsSyncAt *time.Time      `json:"lastTransactionsSyncAt,omitempty"`
	InitialSyncCompleted   bool            `json:"initialSyncCompleted"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
}

// Position is one holding inside a brokerage account.
type Position struct {
	AccountID   string          `json:"accountId"`
	Symbol      string          `json:"symbol"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// MarketValue returns quantity times price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.Price)
}

// UpsertParams contains the fields written on every observation of an account.
type UpsertParams struct {
	ID           string
	ConnectionID string
	UserID       int64
	Name         string
	AccountType  string
	Currency     string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("account ID is required for upsert")
	}
	if p.ConnectionID == "" {
		return errors.New("connection ID is required for upsert")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required for upsert")
	}
	if p.AccountType != "" && !IsValidAccountType(p.AccountType) {
		return ErrInvalidAccountType
	}
	if p.Currency != "" && !IsValidCurrency(p.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// BalanceParams records a fetched balance.
type BalanceParams struct {
	AccountID string
	Amount    decimal.Decimal
	Currency  string
	SyncedAt  time.Time
}

// IsValidAccountType checks if the provided account type is valid.
func IsValidAccountType(t string) bool {
	_, ok := accountTypes[strings.ToUpper(t)]
	return ok
}

// IsValidCurrency checks if the provided currency is a valid ISO 4217 code.
func IsValidCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	_, ok := validCurrencies[strings.ToUpper(c)]
	return ok
}
