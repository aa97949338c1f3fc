package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal,
	// optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrInvalidCoupon matches every coupon rejection. Use errors.Is against
	// the more specific sentinels below to find out why.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponNotFound is returned when no coupon has the given code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponInactive is returned when the coupon has been disabled.
	ErrCouponInactive = errors.New("coupon is not active")
	// ErrCouponNotStarted is returned before the coupon's ValidFrom.
	ErrCouponNotStarted = errors.New("coupon is not yet valid")
	// ErrCouponExpired is returned after the coupon's ValidUntil.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrCouponUserLimitReached is returned when the user has used the coupon
	// as many times as allowed per user.
	ErrCouponUserLimitReached = errors.New("coupon already used the maximum number of times by this user")
	// ErrMinOrderValue is returned when the cart subtotal is below the
	// coupon's minimum order value.
	ErrMinOrderValue = errors.New("order subtotal is below the coupon minimum")
)

// InvalidError describes why a coupon was rejected. It matches both
// ErrInvalidCoupon and the specific reason sentinel via errors.Is.
type InvalidError struct {
	Code   string
	Reason error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("coupon %q: %s", e.Code, e.Reason)
}

func (e *InvalidError) Unwrap() error { return e.Reason }

func (e *InvalidError) Is(target error) bool { return target == ErrInvalidCoupon }

func reject(code string, reason error) error {
	return &InvalidError{Code: code, Reason: reason}
}

// Coupon defines a coupon's discount behaviour and eligibility constraints.
type Coupon struct {
	Code         string
	Description  string
	DiscountType DiscountType
	Value        decimal.Decimal
	// MaxDiscount caps percentage discounts. Nil means uncapped.
	MaxDiscount   *decimal.Decimal
	MinOrderValue decimal.Decimal
	// ValidFrom and ValidUntil form an inclusive window; nil bounds are open.
	ValidFrom  *time.Time
	ValidUntil *time.Time
	// UsageLimitTotal nil means unlimited.
	UsageLimitTotal *int
	// UsageLimitPerUser 0 means unlimited.
	UsageLimitPerUser int
	UsedCount         int
	Active            bool
}

// Usage is one entry of a coupon's append-only usage log.
type Usage struct {
	UserID  string
	OrderID string
	UsedAt  time.Time
}

// Repository provides read access to coupons and their usage log.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Usages(ctx context.Context, code, userID string) ([]Usage, error)
}

// NormalizeCode trims and upper-cases a user-entered coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
