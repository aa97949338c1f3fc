package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount calculates the discount c grants on subtotal. The result is
// clamped to [0, subtotal] and rounded to 2 decimal places.
func Discount(c *Coupon, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil {
			amount = decimal.Min(amount, *c.MaxDiscount)
		}
	case DiscountFixed:
		amount = decimal.Min(c.Value, subtotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
	return clamp(amount, subtotal).Round(2), nil
}

func clamp(amount, subtotal decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() || subtotal.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(amount, subtotal)
}
