package product

import (
	"slices"

	"github.com/shopspring/decimal"
)

// ResolveUnitPrice returns the unit price of p when buying quantity units.
//
// Tiers are scanned from the highest MinQuantity down and the first tier
// whose [MinQuantity, MaxQuantity] range contains quantity wins. Tiers with
// equal MinQuantity are ordered by ascending price, then by their position
// in p.Tiers. When no tier matches, the sale price (if any) or the regular
// price is returned.
func ResolveUnitPrice(p *Product, quantity int) decimal.Decimal {
	for _, t := range sortedTiers(p.Tiers) {
		if t.matches(quantity) {
			return t.Price
		}
	}
	return p.BasePrice()
}

func (t Tier) matches(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

func sortedTiers(tiers []Tier) []Tier {
	if len(tiers) == 0 {
		return nil
	}
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b Tier) int {
		if a.MinQuantity != b.MinQuantity {
			return b.MinQuantity - a.MinQuantity
		}
		return a.Price.Cmp(b.Price)
	})
	return sorted
}
