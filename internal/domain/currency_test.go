package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToMinorUnit(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"736.0000", "EUR", "736"},
		{"10.125", "USD", "10.12"},
		{"10.135", "USD", "10.14"},
		{"121200.5", "JPY", "121200"},
		{"121201.5", "JPY", "121202"},
	}
	for _, tt := range tests {
		got := RoundToMinorUnit(decimal.RequireFromString(tt.amount), tt.currency)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s %s: got %s", tt.amount, tt.currency, got)
	}
}

func TestFitsMinorUnit(t *testing.T) {
	assert.True(t, FitsMinorUnit(decimal.RequireFromString("10.50"), "USD"))
	assert.False(t, FitsMinorUnit(decimal.RequireFromString("10.505"), "USD"))
	assert.True(t, FitsMinorUnit(decimal.RequireFromString("1500"), "JPY"))
	assert.False(t, FitsMinorUnit(decimal.RequireFromString("1500.5"), "JPY"))
}

func TestCurrencies(t *testing.T) {
	assert.Equal(t, "EUR", NormalizeCurrency(" eur "))
	assert.True(t, IsSupportedCurrency("JPY"))
	assert.False(t, IsSupportedCurrency("BTC"))
	assert.Equal(t, []string{"CNY", "EUR", "GBP", "JPY", "USD"}, SupportedCurrencies())
}

func TestEntryStatusTerminal(t *testing.T) {
	assert.False(t, EntryStatusPending.Terminal())
	assert.True(t, EntryStatusCompleted.Terminal())
	assert.True(t, EntryStatusFailed.Terminal())
	assert.True(t, EntryStatusFlagged.Terminal())
}
