package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/smartpos/sale-engine/internal/domain/cart"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTotalsRoundsOnceAtCartLevel(t *testing.T) {
	calc := Calculator{MinorUnits: 2}

	// Three lines of 666.665 sum to 1999.995; half-up lands on 2000.00.
	lines := []domain.Line{
		{ProductID: "p1", Quantity: 1, UnitPrice: d("666.665")},
		{ProductID: "p2", Quantity: 1, UnitPrice: d("666.665")},
		{ProductID: "p3", Quantity: 1, UnitPrice: d("666.665")},
	}

	totals := calc.Totals(lines)
	require.True(t, totals.Subtotal.Equal(d("1999.995")), "subtotal stays unrounded, got %s", totals.Subtotal)
	require.True(t, totals.Total.Equal(d("2000")), "total = %s, want 2000", totals.Total)
}

func TestTotalsAppliesTaxAfterDiscount(t *testing.T) {
	calc := Calculator{MinorUnits: 2, TaxRate: d("0.16")}

	lines := []domain.Line{
		{ProductID: "p1", Quantity: 2, UnitPrice: d("100")},
	}

	totals := calc.Totals(lines, PercentOff{Percent: d("10")})
	require.True(t, totals.Subtotal.Equal(d("200")))
	require.True(t, totals.Discount.Equal(d("20")))
	require.True(t, totals.Tax.Equal(d("28.8")), "tax on discounted base, got %s", totals.Tax)
	require.True(t, totals.Total.Equal(d("208.80")), "total = %s", totals.Total)
}

func TestTotalsDiscountCappedAtSubtotal(t *testing.T) {
	calc := Calculator{MinorUnits: 2}

	lines := []domain.Line{
		{ProductID: "p1", Quantity: 1, UnitPrice: d("50")},
	}

	totals := calc.Totals(lines, AmountOff{Amount: d("80")})
	require.True(t, totals.Discount.Equal(d("50")))
	require.True(t, totals.Total.IsZero(), "total = %s", totals.Total)
}

func TestTotalsStacksRules(t *testing.T) {
	calc := Calculator{MinorUnits: 2}

	lines := []domain.Line{
		{ProductID: "p1", Quantity: 4, UnitPrice: d("25")},
	}

	totals := calc.Totals(lines, PercentOff{Percent: d("10")}, AmountOff{Amount: d("5")})
	require.True(t, totals.Discount.Equal(d("15")))
	require.True(t, totals.Total.Equal(d("85")), "total = %s", totals.Total)
}

func TestTotalsEmptyCart(t *testing.T) {
	calc := Calculator{MinorUnits: 2, TaxRate: d("0.16")}
	totals := calc.Totals(nil)
	require.True(t, totals.Total.IsZero())
}
