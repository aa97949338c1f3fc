package cart

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

// ErrInvalidQuantity is returned when a cart line is set to a quantity below 1.
var ErrInvalidQuantity = errors.New("quantity must be greater than 0")

// Cart is the set of lines a user intends to buy. It is owned by the user
// and emptied when an order is created from it.
type Cart struct {
	UserID string
	Lines  []Line
}

// Line is one product in the cart.
type Line struct {
	ProductID  string      `json:"productId"`
	Quantity   int         `json:"quantity"`
	Selections []Selection `json:"selections,omitempty"`
}

// Selection picks a value of a product option. Price adjustments are looked
// up on the product when the cart is priced, not stored here.
type Selection struct {
	Option string `json:"option"`
	Value  string `json:"value"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// ProductIDs returns the product of every line, in line order.
func (c *Cart) ProductIDs() []string {
	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	return ids
}

// Repository stores carts. FindByUser returns an empty cart, not an error,
// for users that have none.
type Repository interface {
	FindByUser(ctx context.Context, userID string) (*Cart, error)
	SetLine(ctx context.Context, userID string, line Line) error
	RemoveLine(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// SameLines reports whether both carts hold the same lines, ignoring line
// order. A cart has at most one line per product.
func (c *Cart) SameLines(other *Cart) bool {
	if c.IsEmpty() || other.IsEmpty() {
		return c.IsEmpty() && other.IsEmpty()
	}
	if len(c.Lines) != len(other.Lines) {
		return false
	}
	for _, l := range c.Lines {
		i := slices.IndexFunc(other.Lines, func(o Line) bool { return o.ProductID == l.ProductID })
		if i < 0 {
			return false
		}
		o := other.Lines[i]
		if o.Quantity != l.Quantity || !slices.Equal(o.Selections, l.Selections) {
			return false
		}
	}
	return true
}
