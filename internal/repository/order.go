package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, items, subtotal, discount, tax, shipping, total,
	status, coupon, shipping_info, payment_method, payment_status, corporate, tracking,
	confirmed_at, processing_at, shipped_at, delivered_at, cancelled_at, cancel_reason,
	created_at, updated_at`

const (
	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	lockOrderSQL = getOrderSQL + ` FOR UPDATE`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, order_number DESC`

	listHistorySQL = `SELECT order_id, status, actor, notes, created_at
		FROM order_status_history WHERE order_id = ANY($1) ORDER BY id`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)`

	updateOrderSQL = `UPDATE orders SET status = $2, payment_status = $3, corporate = $4,
		tracking = $5, confirmed_at = $6, processing_at = $7, shipped_at = $8,
		delivered_at = $9, cancelled_at = $10, cancel_reason = $11, updated_at = $12
		WHERE id = $1`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, actor, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns the order with its full status history.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return getOrder(ctx, r.pool, getOrderSQL, id)
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	if err := attachHistory(ctx, r.pool, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func getOrder(ctx context.Context, q querier, query, id string) (*order.Order, error) {
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	orders := []order.Order{o}
	if err := attachHistory(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func attachHistory(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	rows, err := q.Query(ctx, listHistorySQL, ids)
	if err != nil {
		return fmt.Errorf("listing order history: %w", err)
	}
	byOrder := make(map[string][]order.HistoryEntry, len(orders))
	var (
		orderID string
		e       order.HistoryEntry
		status  string
	)
	_, err = pgx.ForEachRow(rows, []any{&orderID, &status, &e.Actor, &e.Notes, &e.At}, func() error {
		e.Status = order.Status(status)
		byOrder[orderID] = append(byOrder[orderID], e)
		return nil
	})
	if err != nil {
		return fmt.Errorf("listing order history: %w", err)
	}
	for i := range orders {
		orders[i].History = order.NewHistory(byOrder[orders[i].ID]...)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                            order.Order
		items, shippingRaw           []byte
		couponRaw, corporateRaw      []byte
		trackingRaw                  []byte
		status, payMethod, payStatus string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &items,
		&o.Pricing.Subtotal, &o.Pricing.Discount, &o.Pricing.Tax, &o.Pricing.Shipping, &o.Pricing.Total,
		&status, &couponRaw, &shippingRaw, &payMethod, &payStatus, &corporateRaw, &trackingRaw,
		&o.ConfirmedAt, &o.ProcessingAt, &o.ShippedAt, &o.DeliveredAt, &o.CancelledAt, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.Payment = order.Payment{Method: order.PaymentMethod(payMethod), Status: order.PaymentStatus(payStatus)}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of %q: %w", o.ID, err)
	}
	var shipping shippingRecord
	if err := json.Unmarshal(shippingRaw, &shipping); err != nil {
		return o, fmt.Errorf("decoding shipping of %q: %w", o.ID, err)
	}
	o.Shipping = order.ShippingInfo(shipping)

	if couponRaw != nil {
		var c couponRecord
		if err := json.Unmarshal(couponRaw, &c); err != nil {
			return o, fmt.Errorf("decoding coupon of %q: %w", o.ID, err)
		}
		o.Coupon = &order.AppliedCoupon{
			Code:         c.Code,
			DiscountType: coupon.DiscountType(c.DiscountType),
			Value:        c.Value,
			Discount:     c.Discount,
		}
	}
	if corporateRaw != nil {
		var c corporateRecord
		if err := json.Unmarshal(corporateRaw, &c); err != nil {
			return o, fmt.Errorf("decoding corporate details of %q: %w", o.ID, err)
		}
		o.Corporate = c.toDomain()
	}
	if trackingRaw != nil {
		var t trackingRecord
		if err := json.Unmarshal(trackingRaw, &t); err != nil {
			return o, fmt.Errorf("decoding tracking of %q: %w", o.ID, err)
		}
		o.Tracking = &order.Tracking{Carrier: t.Carrier, Number: t.Number}
	}
	return o, nil
}

// Records below fix the JSONB column layouts independently of the domain
// structs.

type shippingRecord struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type couponRecord struct {
	Code         string          `json:"code"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"value"`
	Discount     decimal.Decimal `json:"discount"`
}

type corporateRecord struct {
	CompanyName  string     `json:"companyName"`
	ContactName  string     `json:"contactName,omitempty"`
	ContactEmail string     `json:"contactEmail,omitempty"`
	PONumber     string     `json:"poNumber,omitempty"`
	Approval     string     `json:"approvalStatus"`
	DecidedBy    string     `json:"decidedBy,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	Notes        string     `json:"notes,omitempty"`
}

func (c corporateRecord) toDomain() *order.Corporate {
	return &order.Corporate{
		CompanyName:  c.CompanyName,
		ContactName:  c.ContactName,
		ContactEmail: c.ContactEmail,
		PONumber:     c.PONumber,
		Approval: order.Approval{
			Status:    order.ApprovalStatus(c.Approval),
			DecidedBy: c.DecidedBy,
			DecidedAt: c.DecidedAt,
			Notes:     c.Notes,
		},
	}
}

type trackingRecord struct {
	Carrier string `json:"carrier"`
	Number  string `json:"number"`
}

// jsonb marshals v, mapping a nil pointer to SQL NULL.
func jsonb[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func corporateJSON(c *order.Corporate) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(corporateRecord{
		CompanyName:  c.CompanyName,
		ContactName:  c.ContactName,
		ContactEmail: c.ContactEmail,
		PONumber:     c.PONumber,
		Approval:     string(c.Approval.Status),
		DecidedBy:    c.Approval.DecidedBy,
		DecidedAt:    c.Approval.DecidedAt,
		Notes:        c.Approval.Notes,
	})
}

func trackingJSON(t *order.Tracking) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return jsonb(&trackingRecord{Carrier: t.Carrier, Number: t.Number})
}

func couponJSON(c *order.AppliedCoupon) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return jsonb(&couponRecord{
		Code:         c.Code,
		DiscountType: string(c.DiscountType),
		Value:        c.Value,
		Discount:     c.Discount,
	})
}
