package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
)

// Status is a state of the order lifecycle.
type Status string

const (
	StatusPending         Status = "pending"
	StatusPendingApproval Status = "pending_approval"
	StatusConfirmed       Status = "confirmed"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// PaymentMethod is the payment option chosen at checkout.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentInvoice      PaymentMethod = "invoice"
	PaymentCOD          PaymentMethod = "cod"
)

// PaymentStatus is tracked by the payment collaborator; orders are always
// created with PaymentPending.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// ApprovalStatus is the state of a corporate order's approval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Order is a durable record created from a cart. Items and Pricing are
// frozen at creation; later changes go through the lifecycle only.
type Order struct {
	ID        string
	Number    string
	UserID    string
	Items     []LineItem
	Pricing   Pricing
	Status    Status
	History   History
	Coupon    *AppliedCoupon
	Shipping  ShippingInfo
	Payment   Payment
	Corporate *Corporate
	Tracking  *Tracking

	ConfirmedAt  *time.Time
	ProcessingAt *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelledAt  *time.Time
	CancelReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LineItem is a priced, point-in-time copy of a cart line. Name, SKU and
// Category are copied from the product so later catalog edits do not change
// historical orders.
type LineItem struct {
	ProductID   string          `json:"productId"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Adjustments []Adjustment    `json:"adjustments,omitempty"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

// Adjustment is a per-unit surcharge from a variant or customization choice.
type Adjustment struct {
	Option string          `json:"option"`
	Value  string          `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

// Pricing is the monetary breakdown of an order.
type Pricing struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// AppliedCoupon summarizes the coupon used on an order.
type AppliedCoupon struct {
	Code         string
	DiscountType coupon.DiscountType
	Value        decimal.Decimal
	Discount     decimal.Decimal
}

// ShippingInfo is the delivery address and contact.
type ShippingInfo struct {
	Name       string
	Phone      string
	Email      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Payment records the chosen method and the collaborator-reported status.
type Payment struct {
	Method PaymentMethod
	Status PaymentStatus
}

// Corporate holds the company details and approval state of a corporate order.
type Corporate struct {
	CompanyName  string
	ContactName  string
	ContactEmail string
	PONumber     string
	Approval     Approval
}

// Approval is the decision on a corporate order.
type Approval struct {
	Status    ApprovalStatus
	DecidedBy string
	DecidedAt *time.Time
	Notes     string
}

// Tracking is the carrier metadata attached when an order ships.
type Tracking struct {
	Carrier string
	Number  string
}

// IsCorporate reports whether the order requires corporate approval.
func (o *Order) IsCorporate() bool { return o.Corporate != nil }

// Quantities returns the ordered quantity per product, summed across lines.
func (o *Order) Quantities() map[string]int {
	return quantities(o.Items)
}

func quantities(items []LineItem) map[string]int {
	q := make(map[string]int, len(items))
	for _, it := range items {
		q[it.ProductID] += it.Quantity
	}
	return q
}

// Repository defines read operations for orders outside a transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// Tx is the set of storage operations that run inside one atomic unit.
// Every method must observe the writes made earlier in the same Tx and none
// of them may be visible to other readers until the unit commits.
type Tx interface {
	// DecrementStock atomically reduces the product's stock by qty. It fails
	// with *InsufficientStockError when stock would become negative and with
	// *ProductUnavailableError when the product is missing or inactive.
	DecrementStock(ctx context.Context, productID string, qty int) error
	// IncrementStock adds qty back to the product's stock.
	IncrementStock(ctx context.Context, productID string, qty int) error

	// LockCoupon loads the coupon and prevents concurrent usage changes until
	// the unit ends. Returns coupon.ErrCouponNotFound for unknown codes.
	LockCoupon(ctx context.Context, code string) (*coupon.Coupon, error)
	CouponUsages(ctx context.Context, code, userID string) ([]coupon.Usage, error)
	// IncrementCouponUsage bumps UsedCount and appends u to the usage log
	// only if the total limit still has room; otherwise it returns
	// coupon.ErrCouponUsageLimitReached.
	IncrementCouponUsage(ctx context.Context, code string, u coupon.Usage) error

	// NextOrderSequence returns the 1-based sequence of the next order created
	// on the given calendar day.
	NextOrderSequence(ctx context.Context, day time.Time) (int, error)
	InsertOrder(ctx context.Context, o *Order) error
	// LockOrder loads the order and blocks concurrent transitions on it.
	// Returns ErrNotFound for unknown IDs.
	LockOrder(ctx context.Context, id string) (*Order, error)
	// SaveTransition persists the mutable order fields and appends entry to
	// the status history.
	SaveTransition(ctx context.Context, o *Order, entry HistoryEntry) error

	// TakeCart empties the user's cart and returns the lines it held. Units
	// taking the same cart are serialized: only the first one gets the lines,
	// the others see an empty cart.
	TakeCart(ctx context.Context, userID string) (*cart.Cart, error)
}

// Store runs fn as a single all-or-nothing unit. If fn returns an error or
// ctx ends before commit, none of fn's writes are kept.
type Store interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
