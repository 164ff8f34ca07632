package cart

import (
	"github.com/shopspring/decimal"

	domain "github.com/smartpos/sale-engine/internal/domain/cart"
	"github.com/smartpos/sale-engine/internal/pkg/money"
)

// DiscountRule reduces a cart subtotal. Rules see the raw subtotal, not
// individual lines; discounts apply at the cart level.
type DiscountRule interface {
	Discount(subtotal decimal.Decimal) decimal.Decimal
}

// PercentOff discounts a percentage of the subtotal.
type PercentOff struct {
	Percent decimal.Decimal
}

func (r PercentOff) Discount(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(r.Percent).Div(decimal.NewFromInt(100))
}

// AmountOff discounts a fixed amount.
type AmountOff struct {
	Amount decimal.Decimal
}

func (r AmountOff) Discount(decimal.Decimal) decimal.Decimal {
	return r.Amount
}

// Totals breaks down a priced cart. Total is rounded to the currency's minor
// unit; the components stay unrounded so nothing drifts when they are summed.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Calculator prices carts for one configured currency. Rounding happens
// exactly once, at the cart level, using round-half-up.
type Calculator struct {
	MinorUnits int32
	TaxRate    decimal.Decimal
}

func (c Calculator) Totals(lines []domain.Line, rules ...DiscountRule) Totals {
	subtotal := money.Zero()
	for _, line := range lines {
		subtotal = subtotal.Add(money.LineTotal(line.UnitPrice, line.Quantity))
	}

	discount := money.Zero()
	for _, rule := range rules {
		discount = discount.Add(rule.Discount(subtotal))
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}

	base := subtotal.Sub(discount)
	tax := base.Mul(c.TaxRate)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    money.Round(base.Add(tax), c.MinorUnits),
	}
}
