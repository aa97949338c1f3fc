package order

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
)

func newOrderID() string { return uuid.NewString() }

// PlaceOrderRequest holds the checkout input beyond the cart itself.
type PlaceOrderRequest struct {
	Shipping      ShippingInfo
	PaymentMethod PaymentMethod
	CouponCode    string
	// Corporate, when set, creates the order in pending_approval.
	Corporate *CorporateDetails
}

// CorporateDetails are the company fields supplied at checkout.
type CorporateDetails struct {
	CompanyName  string
	ContactName  string
	ContactEmail string
	PONumber     string
}

// PlaceOrder converts the caller's cart into an order.
//
// Stock decrements, coupon usage, order number allocation, the order insert
// and taking the cart happen in one transaction: either all of them are
// committed or none. The whole operation is bounded by the configured
// timeout; exceeding it returns ErrOrderCreationTimeout and leaves no trace.
func (s *Service) PlaceOrder(ctx context.Context, p auth.Principal, req PlaceOrderRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder",
		trace.WithAttributes(attribute.String("user.id", p.UserID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.metrics.checkoutFailed(ctx, rerr)
		}
		span.End()
	}()

	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	o, err := s.placeOrder(tctx, p, req)
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			zctx.From(ctx).Warn("Order creation timed out", zap.Duration("timeout", s.timeout), zap.Error(err))
			return nil, ErrOrderCreationTimeout
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("order.number", o.Number))

	s.metrics.created.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("corporate", o.IsCorporate()),
		attribute.Bool("coupon", o.Coupon != nil),
	))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("user_id", o.UserID),
		zap.String("total", o.Pricing.Total.StringFixed(2)),
	)
	s.notifier.Notify(ctx, newEvent(EventCreated, o, "", p.UserID))

	if s.autoConfirm && !o.IsCorporate() {
		confirmed, err := s.transition(ctx, o.ID, auth.System, Transition{
			To:    StatusConfirmed,
			Actor: auth.System.UserID,
			Notes: "auto-confirmed",
		})
		if err != nil {
			// The order exists; it just stays pending for manual confirmation.
			zctx.From(ctx).Warn("Auto-confirm failed", zap.String("order_id", o.ID), zap.Error(err))
			return o, nil
		}
		return confirmed, nil
	}
	return o, nil
}

// maxCartAttempts bounds how often a checkout starts over because the cart
// was edited between pricing it and taking it.
const maxCartAttempts = 3

func (s *Service) placeOrder(ctx context.Context, p auth.Principal, req PlaceOrderRequest) (*Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.checkout(ctx, p, req)
		if errors.Is(err, ErrCartChanged) && attempt < maxCartAttempts {
			zctx.From(ctx).Debug("Cart changed during checkout, retrying", zap.Int("attempt", attempt))
			continue
		}
		return o, err
	}
}

// checkout prices the cart outside the transaction, then takes the cart
// inside it. The order is only created from exactly the lines that were
// priced; a cart already taken by a concurrent checkout yields ErrEmptyCart.
func (s *Service) checkout(ctx context.Context, p auth.Principal, req PlaceOrderRequest) (*Order, error) {
	c, err := s.carts.FindByUser(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	items, err := s.snapshots.Build(ctx, c)
	if err != nil {
		return nil, err
	}
	subtotal := Subtotal(items)
	code := coupon.NormalizeCode(req.CouponCode)

	var created *Order
	if err := s.store.Do(ctx, func(ctx context.Context, tx Tx) error {
		taken, err := tx.TakeCart(ctx, p.UserID)
		if err != nil {
			return errors.Wrap(err, "take cart")
		}
		if taken.IsEmpty() {
			return ErrEmptyCart
		}
		if !c.SameLines(taken) {
			return ErrCartChanged
		}

		now := s.now()
		discount, applied, err := s.lockCoupon(ctx, tx, code, subtotal, p.UserID, now)
		if err != nil {
			return err
		}

		seq, err := tx.NextOrderSequence(ctx, Day(now, s.loc))
		if err != nil {
			return errors.Wrap(err, "next order sequence")
		}

		o := &Order{
			ID:        s.newID(),
			Number:    FormatNumber(now.In(s.loc), seq),
			UserID:    p.UserID,
			Items:     items,
			Pricing:   s.policy.Price(subtotal, discount),
			Coupon:    applied,
			Shipping:  req.Shipping,
			Payment:   Payment{Method: req.PaymentMethod, Status: PaymentPending},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if applied != nil {
			applied.Discount = o.Pricing.Discount
		}
		o.Status = StatusPending
		if req.Corporate != nil {
			o.Status = StatusPendingApproval
			o.Corporate = &Corporate{
				CompanyName:  req.Corporate.CompanyName,
				ContactName:  req.Corporate.ContactName,
				ContactEmail: req.Corporate.ContactEmail,
				PONumber:     req.Corporate.PONumber,
				Approval:     Approval{Status: ApprovalPending},
			}
		}
		o.History.append(HistoryEntry{Status: o.Status, At: now, Actor: p.UserID, Notes: "order created"})

		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}

		qty := o.Quantities()
		for _, id := range sortedKeys(qty) {
			if err := tx.DecrementStock(ctx, id, qty[id]); err != nil {
				return withName(err, items)
			}
		}

		if applied != nil {
			if err := tx.IncrementCouponUsage(ctx, applied.Code, coupon.Usage{
				UserID:  p.UserID,
				OrderID: o.ID,
				UsedAt:  now,
			}); err != nil {
				if errors.Is(err, coupon.ErrCouponUsageLimitReached) {
					return &coupon.InvalidError{Code: applied.Code, Reason: coupon.ErrCouponUsageLimitReached}
				}
				return errors.Wrap(err, "record coupon usage")
			}
		}

		created = o
		return nil
	}); err != nil {
		return nil, err
	}
	return created, nil
}

// lockCoupon re-evaluates the coupon under its row lock so that concurrent
// checkouts see each other's usage.
func (s *Service) lockCoupon(
	ctx context.Context, tx Tx, code string, subtotal decimal.Decimal, userID string, now time.Time,
) (decimal.Decimal, *AppliedCoupon, error) {
	if code == "" {
		return decimal.Zero, nil, nil
	}
	c, err := tx.LockCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, coupon.ErrCouponNotFound) {
			return decimal.Zero, nil, &coupon.InvalidError{Code: code, Reason: coupon.ErrCouponNotFound}
		}
		return decimal.Zero, nil, errors.Wrap(err, "lock coupon")
	}
	var history []coupon.Usage
	if c.UsageLimitPerUser > 0 {
		if history, err = tx.CouponUsages(ctx, c.Code, userID); err != nil {
			return decimal.Zero, nil, errors.Wrap(err, "coupon usages")
		}
	}
	discount, err := coupon.Evaluate(c, subtotal, userID, history, now)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return discount, &AppliedCoupon{
		Code:         c.Code,
		DiscountType: c.DiscountType,
		Value:        c.Value,
		Discount:     discount,
	}, nil
}

// withName fills in the product name on stock errors raised by storage,
// which only knows the product ID.
func withName(err error, items []LineItem) error {
	name := func(id string) string {
		for _, it := range items {
			if it.ProductID == id {
				return it.Name
			}
		}
		return ""
	}
	var stock *InsufficientStockError
	if errors.As(err, &stock) && stock.Name == "" {
		cp := *stock
		cp.Name = name(cp.ProductID)
		return &cp
	}
	var unavailable *ProductUnavailableError
	if errors.As(err, &unavailable) && unavailable.Name == "" {
		cp := *unavailable
		cp.Name = name(cp.ProductID)
		return &cp
	}
	return err
}

// sortedKeys gives a stable lock order across concurrent checkouts.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
