package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID           string
	SKU          string
	Name         string
	Category     string
	RegularPrice decimal.Decimal
	// SalePrice, when set, replaces RegularPrice for quantities that no
	// bulk tier covers.
	SalePrice     *decimal.Decimal
	Tiers         []Tier
	Options       []Option
	StockQuantity int
	Active        bool
}

// Tier is a bulk pricing rule. MaxQuantity nil means the tier is open-ended.
type Tier struct {
	MinQuantity int             `json:"minQuantity"`
	MaxQuantity *int            `json:"maxQuantity,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// Option is a variant or customization axis (e.g. "Color", "Engraving").
type Option struct {
	Name   string        `json:"name"`
	Values []OptionValue `json:"values"`
}

// OptionValue is one selectable value of an Option with its per-unit surcharge.
type OptionValue struct {
	Value           string          `json:"value"`
	PriceAdjustment decimal.Decimal `json:"priceAdjustment"`
}

// Adjustment returns the per-unit price adjustment for the given option value.
// The boolean is false when the product has no such option or value.
func (p *Product) Adjustment(option, value string) (decimal.Decimal, bool) {
	for _, o := range p.Options {
		if o.Name != option {
			continue
		}
		for _, v := range o.Values {
			if v.Value == value {
				return v.PriceAdjustment, true
			}
		}
		return decimal.Zero, false
	}
	return decimal.Zero, false
}

// BasePrice is the unit price used when no bulk tier applies.
func (p *Product) BasePrice() decimal.Decimal {
	if p.SalePrice != nil && p.SalePrice.IsPositive() {
		return *p.SalePrice
	}
	return p.RegularPrice
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
