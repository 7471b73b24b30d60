// Package money converts integer minor currency units (cents, halalas) to
// their display form. Amounts are stored and summed as int64 everywhere
// else; only this package ever produces a major-unit value.
package money

import (
	"github.com/shopspring/decimal"
)

// Format renders minor units as a major-unit string with two decimals,
// e.g. 7900 -> "79.00".
func Format(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Amount is the JSON shape used wherever a price is shown to a client.
type Amount struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func NewAmount(cents int64) Amount {
	return Amount{Cents: cents, Formatted: Format(cents)}
}

// Average divides total by n in minor units, rounding down. Zero n yields zero.
func Average(total int64, n int64) int64 {
	if n <= 0 {
		return 0
	}
	return total / n
}
