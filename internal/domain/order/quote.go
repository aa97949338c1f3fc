package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
)

// Quote is a priced view of the caller's cart. Nothing is reserved or
// recorded; the figures are recomputed at checkout.
type Quote struct {
	Items   []LineItem
	Coupon  *AppliedCoupon
	Pricing Pricing
}

// Quote prices the caller's current cart, optionally with a coupon. An
// empty cart yields an empty quote rather than an error.
func (s *Service) Quote(ctx context.Context, p auth.Principal, couponCode string) (*Quote, error) {
	c, err := s.carts.FindByUser(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		if couponCode != "" {
			return nil, ErrEmptyCart
		}
		zero := decimal.Zero
		return &Quote{Pricing: Pricing{Subtotal: zero, Discount: zero, Tax: zero, Shipping: zero, Total: zero}}, nil
	}

	items, err := s.snapshots.Build(ctx, c)
	if err != nil {
		return nil, err
	}
	subtotal := Subtotal(items)

	q := &Quote{Items: items}
	discount := decimal.Zero
	if code := coupon.NormalizeCode(couponCode); code != "" {
		applied, err := s.evaluateCoupon(ctx, code, subtotal, p.UserID)
		if err != nil {
			return nil, err
		}
		q.Coupon = applied
		discount = applied.Discount
	}
	q.Pricing = s.policy.Price(subtotal, discount)
	return q, nil
}

// evaluateCoupon checks a coupon outside any transaction. Its answer may be
// stale by the time the order is placed.
func (s *Service) evaluateCoupon(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*AppliedCoupon, error) {
	c, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			return nil, &coupon.InvalidError{Code: code, Reason: coupon.ErrCouponNotFound}
		}
		return nil, errors.Wrap(err, "find coupon")
	}
	var history []coupon.Usage
	if c.UsageLimitPerUser > 0 {
		if history, err = s.coupons.Usages(ctx, c.Code, userID); err != nil {
			return nil, errors.Wrap(err, "coupon usages")
		}
	}
	discount, err := coupon.Evaluate(c, subtotal, userID, history, s.now())
	if err != nil {
		return nil, err
	}
	return &AppliedCoupon{
		Code:         c.Code,
		DiscountType: c.DiscountType,
		Value:        c.Value,
		Discount:     discount,
	}, nil
}
