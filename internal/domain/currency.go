package domain

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnits is the number of decimal places each supported currency uses.
var minorUnits = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CNY": 2,
	"JPY": 0,
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func IsSupportedCurrency(code string) bool {
	_, ok := minorUnits[code]
	return ok
}

func SupportedCurrencies() []string {
	codes := make([]string, 0, len(minorUnits))
	for code := range minorUnits {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// MinorUnits defaults to 2 for unknown codes.
func MinorUnits(code string) int32 {
	if places, ok := minorUnits[code]; ok {
		return places
	}
	return 2
}

// RoundToMinorUnit rounds half-to-even at the currency's minor unit.
func RoundToMinorUnit(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.RoundBank(MinorUnits(code))
}

// FitsMinorUnit reports whether amount needs no rounding in the currency.
func FitsMinorUnit(amount decimal.Decimal, code string) bool {
	return amount.Equal(amount.Truncate(MinorUnits(code)))
}
