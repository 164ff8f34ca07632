package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amounts are decimal.Decimal throughout the engine; this package owns the
// rounding and arithmetic conventions so they are applied in exactly one place.

// Round rounds an amount to the currency's minor unit using round-half-up.
// Sale amounts are never negative, so decimal's half-away-from-zero rounding
// is exactly half-up here.
func Round(amount decimal.Decimal, minorUnits int32) decimal.Decimal {
	return amount.Round(minorUnits)
}

// LineTotal multiplies a unit price by an integer quantity without rounding.
// Rounding happens once at the cart level, never per line.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Zero is the additive identity for running sums.
func Zero() decimal.Decimal { return decimal.Zero }

// Parse converts a decimal string (e.g. "129.99") into an amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for literals in wiring and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
