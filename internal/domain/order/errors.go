package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/giftkart/internal/domain/cart"
)

// Sentinel errors for order operations.
var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNotFound             = errors.New("order not found")
	ErrUnauthorized         = errors.New("not allowed to perform this action")
	ErrOrderCreationTimeout = errors.New("order creation timed out, please retry")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrProductUnavailable   = errors.New("product unavailable")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidSelection     = errors.New("invalid product option")
	ErrCartChanged          = errors.New("cart changed during checkout, please retry")
)

// InsufficientStockError indicates a product has fewer units than requested.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ProductUnavailableError indicates a cart references a product that is
// inactive or no longer exists.
type ProductUnavailableError struct {
	ProductID string
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("product %s is no longer available", e.ProductID)
	}
	return fmt.Sprintf("product %s is no longer available", e.Name)
}

func (e *ProductUnavailableError) Is(target error) bool { return target == ErrProductUnavailable }

// InvalidSelectionError indicates a cart line selects an option value the
// product does not offer.
type InvalidSelectionError struct {
	ProductID string
	Option    string
	Value     string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("product %s has no option %s=%s", e.ProductID, e.Option, e.Value)
}

func (e *InvalidSelectionError) Is(target error) bool { return target == ErrInvalidSelection }

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == cart.ErrInvalidQuantity }

// InvalidTransitionError indicates the lifecycle does not allow moving from
// From to To. Nothing is changed when it is returned.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move order from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
