// Package money normalizes decimal amounts into a currency's divisibility.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize rounds v up to divisibility decimal places. Rounding is always
// toward positive infinity so a normalized request amount can never fall
// below the requested sum.
func Normalize(v decimal.Decimal, divisibility int32) decimal.Decimal {
	if divisibility < 0 {
		divisibility = 0
	}
	return v.Shift(divisibility).Ceil().Shift(-divisibility)
}

// Format renders v with at most divisibility decimal places, trimming
// trailing zeros ("0.00100000" -> "0.001").
func Format(v decimal.Decimal, divisibility int32) string {
	if divisibility < 0 {
		divisibility = 0
	}
	s := v.StringFixed(divisibility)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FromPercent converts a percentage (e.g. 2.5) into its fractional multiplier.
func FromPercent(pct decimal.Decimal) decimal.Decimal {
	return pct.Div(decimal.NewFromInt(100))
}
