package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
)

var _ order.Tx = (*Tx)(nil)

// Tx is an open memory transaction. It is only valid inside Store.Do.
type Tx struct {
	st state
}

func (tx *Tx) DecrementStock(_ context.Context, productID string, qty int) error {
	p, ok := tx.st.products[productID]
	if !ok {
		return &order.ProductUnavailableError{ProductID: productID}
	}
	if !p.Active {
		return &order.ProductUnavailableError{ProductID: productID, Name: p.Name}
	}
	if p.StockQuantity < qty {
		return &order.InsufficientStockError{
			ProductID: productID,
			Name:      p.Name,
			Requested: qty,
			Available: p.StockQuantity,
		}
	}
	p.StockQuantity -= qty
	tx.st.products[productID] = p
	return nil
}

func (tx *Tx) IncrementStock(_ context.Context, productID string, qty int) error {
	p, ok := tx.st.products[productID]
	if !ok {
		return fmt.Errorf("product %q not found", productID)
	}
	p.StockQuantity += qty
	tx.st.products[productID] = p
	return nil
}

func (tx *Tx) LockCoupon(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := tx.st.coupons[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return &c, nil
}

func (tx *Tx) CouponUsages(_ context.Context, code, userID string) ([]coupon.Usage, error) {
	return usagesOf(tx.st, code, userID), nil
}

func (tx *Tx) IncrementCouponUsage(_ context.Context, code string, u coupon.Usage) error {
	c, ok := tx.st.coupons[code]
	if !ok {
		return coupon.ErrCouponNotFound
	}
	if c.UsageLimitTotal != nil && c.UsedCount >= *c.UsageLimitTotal {
		return coupon.ErrCouponUsageLimitReached
	}
	c.UsedCount++
	tx.st.coupons[code] = c
	tx.st.usages[code] = append(slices.Clip(tx.st.usages[code]), u)
	return nil
}

func (tx *Tx) NextOrderSequence(_ context.Context, day time.Time) (int, error) {
	key := day.Format(time.DateOnly)
	tx.st.sequences[key]++
	return tx.st.sequences[key], nil
}

func (tx *Tx) InsertOrder(_ context.Context, o *order.Order) error {
	if _, ok := tx.st.orders[o.ID]; ok {
		return fmt.Errorf("order %q already exists", o.ID)
	}
	for _, existing := range tx.st.orders {
		if existing.Number == o.Number {
			return fmt.Errorf("order number %q already exists", o.Number)
		}
	}
	tx.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (tx *Tx) LockOrder(_ context.Context, id string) (*order.Order, error) {
	o, ok := tx.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (tx *Tx) SaveTransition(_ context.Context, o *order.Order, entry order.HistoryEntry) error {
	stored, ok := tx.st.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if o.History.Len() != stored.History.Len()+1 {
		return fmt.Errorf("order %q: history must grow by exactly one entry", o.ID)
	}
	if last, _ := o.History.Last(); last != entry {
		return fmt.Errorf("order %q: entry is not the newest history entry", o.ID)
	}
	tx.st.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (tx *Tx) TakeCart(_ context.Context, userID string) (*cart.Cart, error) {
	lines := slices.Clone(tx.st.carts[userID])
	delete(tx.st.carts, userID)
	return &cart.Cart{UserID: userID, Lines: lines}, nil
}

func usagesOf(st state, code, userID string) []coupon.Usage {
	var out []coupon.Usage
	for _, u := range st.usages[code] {
		if u.UserID == userID {
			out = append(out, u)
		}
	}
	return out
}
