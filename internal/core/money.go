// Package core holds the subscription domain: validation, renewal arithmetic,
// reminder planning and money handling.
//
// Amounts are shopspring decimals. Floats are never used for money.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a positive decimal amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents, thousands separators and zero are rejected.
//
// Examples:
//
//	ParseAmount("1490")   -> 1490, nil
//	ParseAmount("12,99")  -> 12.99, nil
//	ParseAmount("-1")     -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseRate parses a positive exchange rate. Same rules as ParseAmount.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrInvalidRate
	}
	return d, nil
}

// Convert multiplies amount by rate. Rounding is left to presentation.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// FormatAmount renders an amount for display. Currencies without minor units
// (JPY, KRW) print as integers; everything else with two decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	switch currency {
	case "JPY", "KRW", "VND", "CLP", "ISK":
		return amount.Round(0).StringFixed(0)
	default:
		return amount.StringFixed(2)
	}
}
