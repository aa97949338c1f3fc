package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
)

const (
	// Conditional decrement: the row is only updated while enough stock is
	// left, so concurrent checkouts can never drive it below zero.
	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND is_active AND stock_quantity >= $2
		RETURNING stock_quantity`

	incrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`

	productStockSQL = `SELECT name, stock_quantity, is_active FROM products WHERE id = $1`

	nextOrderSequenceSQL = `INSERT INTO order_sequences (day, last_value) VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value`
)

var _ order.Store = (*Store)(nil)

// Store runs order units of work in PostgreSQL transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Do runs fn inside a READ COMMITTED transaction. Row locks taken by Tx
// methods serialize the conflicting parts of concurrent units.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(pgtx pgx.Tx) error {
		return fn(ctx, &Tx{tx: pgtx})
	})
}

var _ order.Tx = (*Tx)(nil)

// Tx implements order.Tx on an open pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) DecrementStock(ctx context.Context, productID string, qty int) error {
	var left int
	err := t.tx.QueryRow(ctx, decrementStockSQL, productID, qty).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("decrementing stock of %q: %w", productID, err)
	}

	var (
		name      string
		available int
		active    bool
	)
	err = t.tx.QueryRow(ctx, productStockSQL, productID).Scan(&name, &available, &active)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return &order.ProductUnavailableError{ProductID: productID}
	case err != nil:
		return fmt.Errorf("reading stock of %q: %w", productID, err)
	case !active:
		return &order.ProductUnavailableError{ProductID: productID, Name: name}
	default:
		return &order.InsufficientStockError{
			ProductID: productID,
			Name:      name,
			Requested: qty,
			Available: available,
		}
	}
}

func (t *Tx) IncrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := t.tx.Exec(ctx, incrementStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("incrementing stock of %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("incrementing stock of %q: product not found", productID)
	}
	return nil
}

func (t *Tx) LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, t.tx, lockCouponSQL, code)
}

func (t *Tx) CouponUsages(ctx context.Context, code, userID string) ([]coupon.Usage, error) {
	return couponUsages(ctx, t.tx, code, userID)
}

func (t *Tx) IncrementCouponUsage(ctx context.Context, code string, u coupon.Usage) error {
	tag, err := t.tx.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage of coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrCouponUsageLimitReached
	}
	if _, err := t.tx.Exec(ctx, insertCouponUsageSQL, code, u.UserID, u.OrderID, u.UsedAt); err != nil {
		return fmt.Errorf("recording usage of coupon %q: %w", code, err)
	}
	return nil
}

func (t *Tx) NextOrderSequence(ctx context.Context, day time.Time) (int, error) {
	var seq int
	// Pass the calendar date as text so the session time zone cannot shift it.
	if err := t.tx.QueryRow(ctx, nextOrderSequenceSQL, day.Format(time.DateOnly)).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocating order sequence: %w", err)
	}
	return seq, nil
}

func (t *Tx) InsertOrder(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	couponRaw, err := couponJSON(o.Coupon)
	if err != nil {
		return fmt.Errorf("marshaling order coupon: %w", err)
	}
	shipping, err := json.Marshal(shippingRecord(o.Shipping))
	if err != nil {
		return fmt.Errorf("marshaling shipping info: %w", err)
	}
	corporate, err := corporateJSON(o.Corporate)
	if err != nil {
		return fmt.Errorf("marshaling corporate details: %w", err)
	}
	tracking, err := trackingJSON(o.Tracking)
	if err != nil {
		return fmt.Errorf("marshaling tracking: %w", err)
	}

	if _, err := t.tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, items,
		o.Pricing.Subtotal, o.Pricing.Discount, o.Pricing.Tax, o.Pricing.Shipping, o.Pricing.Total,
		string(o.Status), couponRaw, shipping, string(o.Payment.Method), string(o.Payment.Status),
		corporate, tracking,
		o.ConfirmedAt, o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.CancelReason,
		o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for _, e := range o.History.Entries() {
		if err := t.insertHistory(ctx, o.ID, e); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) LockOrder(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, t.tx, lockOrderSQL, id)
}

func (t *Tx) SaveTransition(ctx context.Context, o *order.Order, entry order.HistoryEntry) error {
	corporate, err := corporateJSON(o.Corporate)
	if err != nil {
		return fmt.Errorf("marshaling corporate details: %w", err)
	}
	tracking, err := trackingJSON(o.Tracking)
	if err != nil {
		return fmt.Errorf("marshaling tracking: %w", err)
	}

	tag, err := t.tx.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), string(o.Payment.Status), corporate, tracking,
		o.ConfirmedAt, o.ProcessingAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, o.CancelReason,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return t.insertHistory(ctx, o.ID, entry)
}

func (t *Tx) TakeCart(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := t.tx.Query(ctx, takeCartSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("taking cart of %q: %w", userID, err)
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, fmt.Errorf("taking cart of %q: %w", userID, err)
	}
	return &cart.Cart{UserID: userID, Lines: lines}, nil
}

func (t *Tx) insertHistory(ctx context.Context, orderID string, e order.HistoryEntry) error {
	if _, err := t.tx.Exec(ctx, insertHistorySQL, orderID, string(e.Status), e.Actor, e.Notes, e.At); err != nil {
		return fmt.Errorf("appending history of order %q: %w", orderID, err)
	}
	return nil
}
