package account

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestIsValidAccountType(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"BANK", true},
		{"CREDIT", true},
		{"INVESTMENT", true},
		{"BROKERAGE", true},
		{"brokerage", true},
		{"INVALID", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsValidAccountType(tt.input)
			if got != tt.want {
				t.Errorf("IsValidAccountType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsValidCurrency(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"BRL", true},
		{"USD", true},
		{"usd", true},
		{"EUR", true},
		{"XYZ", false},
		{"US", false},
		{"USDT", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := IsValidCurrency(tt.input)
			if got != tt.want {
				t.Errorf("IsValidCurrency(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestUpsertParams_Validate(t *testing.T) {
	valid := UpsertParams{ID: "acc-1", ConnectionID: "auth-1", UserID: 1, Name: "Brokerage", AccountType: "BROKERAGE", Currency: "USD"}

	tests := []struct {
		name    string
		modify  func(p *UpsertParams)
		wantErr error
	}{
		{"valid", func(p *UpsertParams) {}, nil},
		{"missing type and currency allowed", func(p *UpsertParams) { p.AccountType = ""; p.Currency = "" }, nil},
		{"bad type", func(p *UpsertParams) { p.AccountType = "CRYPTO" }, ErrInvalidAccountType},
		{"bad currency", func(p *UpsertParams) { p.Currency = "ZZZ" }, ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.modify(&p)
			err := p.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	for _, p := range []UpsertParams{
		{ConnectionID: "c", UserID: 1},
		{ID: "a", UserID: 1},
		{ID: "a", ConnectionID: "c"},
	} {
		if err := p.Validate(); err == nil {
			t.Errorf("Validate(%+v) expected error", p)
		}
	}
}

func TestPosition_MarketValue(t *testing.T) {
	p := Position{Quantity: decimal.RequireFromString("3"), Price: decimal.RequireFromString("101.25")}

	if got := p.MarketValue(); !got.Equal(decimal.RequireFromString("303.75")) {
		t.Errorf("MarketValue() = %s, want 303.75", got)
	}
}
