package order

import "github.com/shopspring/decimal"

// Policy holds the store-wide pricing constants applied at checkout.
type Policy struct {
	// TaxRate is a fraction, e.g. 0.18 for 18%.
	TaxRate decimal.Decimal
	// FreeShippingThreshold is the subtotal from which shipping is free.
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		TaxRate:               decimal.RequireFromString("0.18"),
		FreeShippingThreshold: decimal.NewFromInt(500),
		ShippingFee:           decimal.NewFromInt(25),
	}
}

// Price computes the order breakdown. Tax applies to the discounted
// subtotal, shipping is decided on the undiscounted subtotal, and every
// amount is rounded to cents.
func (p Policy) Price(subtotal, discount decimal.Decimal) Pricing {
	subtotal = subtotal.Round(2)
	discount = decimal.Min(decimal.Max(discount, decimal.Zero), subtotal).Round(2)

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(p.TaxRate).Round(2)

	shipping := p.ShippingFee
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	shipping = shipping.Round(2)

	return Pricing{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Shipping: shipping,
		Total:    taxable.Add(tax).Add(shipping).Round(2),
	}
}
