package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/product"
)

// SnapshotBuilder turns a cart into priced, immutable line items.
type SnapshotBuilder struct {
	products product.Repository
}

// NewSnapshotBuilder creates a SnapshotBuilder reading from products.
func NewSnapshotBuilder(products product.Repository) *SnapshotBuilder {
	return &SnapshotBuilder{products: products}
}

// Build validates every cart line against the current catalog and freezes
// its price. Stock is checked here for early feedback only; the decrement
// inside the order transaction is what actually guards against overselling.
func (b *SnapshotBuilder) Build(ctx context.Context, c *cart.Cart) ([]LineItem, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	for _, l := range c.Lines {
		if l.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: l.ProductID}
		}
	}

	fetched, err := b.products.GetByIDs(ctx, c.ProductIDs())
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]*product.Product, len(fetched))
	for i := range fetched {
		byID[fetched[i].ID] = &fetched[i]
	}

	items := make([]LineItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: l.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: p.ID, Name: p.Name}
		}
		if p.StockQuantity < l.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: l.Quantity,
				Available: p.StockQuantity,
			}
		}

		item, err := priceLine(p, l)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// priceLine computes lineTotal = (unitPrice + sum of adjustments) * quantity.
func priceLine(p *product.Product, l cart.Line) (LineItem, error) {
	unit := product.ResolveUnitPrice(p, l.Quantity)

	var adjustments []Adjustment
	perUnit := unit
	for _, sel := range l.Selections {
		amount, ok := p.Adjustment(sel.Option, sel.Value)
		if !ok {
			return LineItem{}, &InvalidSelectionError{ProductID: p.ID, Option: sel.Option, Value: sel.Value}
		}
		adjustments = append(adjustments, Adjustment{Option: sel.Option, Value: sel.Value, Amount: amount})
		perUnit = perUnit.Add(amount)
	}

	return LineItem{
		ProductID:   p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Category:    p.Category,
		Quantity:    l.Quantity,
		UnitPrice:   unit,
		Adjustments: adjustments,
		LineTotal:   perUnit.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
	}, nil
}

// Subtotal sums the line totals.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}
