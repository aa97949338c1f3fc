package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evaluate checks whether c can be applied by userID to a cart worth
// subtotal at the given instant and returns the discount amount.
//
// Checks run in a fixed order and stop at the first failure: active flag,
// validity window, total usage limit, per-user limit, minimum order value.
// The returned error is an *InvalidError. Evaluate has no side effects;
// usage is recorded by the caller inside the order transaction.
func Evaluate(c *Coupon, subtotal decimal.Decimal, userID string, history []Usage, now time.Time) (decimal.Decimal, error) {
	if c == nil {
		return decimal.Zero, reject("", ErrCouponNotFound)
	}
	if !c.Active {
		return decimal.Zero, reject(c.Code, ErrCouponInactive)
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return decimal.Zero, reject(c.Code, ErrCouponNotStarted)
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return decimal.Zero, reject(c.Code, ErrCouponExpired)
	}
	if c.UsageLimitTotal != nil && c.UsedCount >= *c.UsageLimitTotal {
		return decimal.Zero, reject(c.Code, ErrCouponUsageLimitReached)
	}
	if c.UsageLimitPerUser > 0 && countUserUsages(history, userID) >= c.UsageLimitPerUser {
		return decimal.Zero, reject(c.Code, ErrCouponUserLimitReached)
	}
	if subtotal.LessThan(c.MinOrderValue) {
		return decimal.Zero, reject(c.Code, ErrMinOrderValue)
	}
	return Discount(c, subtotal)
}

func countUserUsages(history []Usage, userID string) int {
	n := 0
	for _, u := range history {
		if u.UserID == userID {
			n++
		}
	}
	return n
}
