package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places money values may carry.
const MoneyScale = 2

// MaxAmount bounds a single menu price or topup.
var MaxAmount = FromCents(100_000_000)

var (
	hundred  = decimal.NewFromInt(100)
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// ParseMoney parses a decimal string such as "40.00" into a money value.
// More than two decimal places is an error.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse money %q: %w", s, err)
	}
	if !IsMoneyScale(d) {
		return decimal.Zero, fmt.Errorf("parse money %q: more than %d decimal places", s, MoneyScale)
	}
	return d, nil
}

// IsMoneyScale reports whether d has at most two decimal places.
func IsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// ToCents converts a money value to integer minor units.
func ToCents(d decimal.Decimal) (int64, error) {
	if !IsMoneyScale(d) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d, MoneyScale)
	}
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %s is not representable in cents", d)
	}
	if cents.LessThan(minCents) || cents.GreaterThan(maxCents) {
		return 0, fmt.Errorf("amount %s is out of range", d)
	}
	return cents.IntPart(), nil
}

// ExceedsMaxAmount reports whether d is larger than MaxAmount.
func ExceedsMaxAmount(d decimal.Decimal) bool {
	return d.GreaterThan(MaxAmount)
}

// FromCents converts integer minor units to a money value.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -MoneyScale)
}

// FormatMoney renders d with exactly two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
