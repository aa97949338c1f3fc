package product

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func intPtr(v int) *int { return &v }

func TestResolveUnitPrice(t *testing.T) {
	bulk := &Product{
		ID:           "p1",
		RegularPrice: d("12"),
		Tiers: []Tier{
			{MinQuantity: 50, Price: d("6")},
			{MinQuantity: 1, Price: d("10")},
			{MinQuantity: 10, Price: d("8")},
		},
	}

	tests := []struct {
		name     string
		product  *Product
		quantity int
		want     decimal.Decimal
	}{
		{name: "single unit uses first tier", product: bulk, quantity: 1, want: d("10")},
		{name: "quantity 12 uses 10+ tier", product: bulk, quantity: 12, want: d("8")},
		{name: "quantity 49 still in 10+ tier", product: bulk, quantity: 49, want: d("8")},
		{name: "quantity 50 reaches 50+ tier", product: bulk, quantity: 50, want: d("6")},
		{name: "large quantity stays in open tier", product: bulk, quantity: 5000, want: d("6")},
		{
			name: "bounded tier outside range falls through",
			product: &Product{
				RegularPrice: d("20"),
				Tiers: []Tier{
					{MinQuantity: 10, MaxQuantity: intPtr(19), Price: d("15")},
					{MinQuantity: 5, MaxQuantity: intPtr(9), Price: d("18")},
				},
			},
			quantity: 25,
			want:     d("20"),
		},
		{
			name: "bounded tier inside range",
			product: &Product{
				RegularPrice: d("20"),
				Tiers: []Tier{
					{MinQuantity: 10, MaxQuantity: intPtr(19), Price: d("15")},
				},
			},
			quantity: 19,
			want:     d("15"),
		},
		{
			name:     "no tiers uses regular price",
			product:  &Product{RegularPrice: d("9.99")},
			quantity: 3,
			want:     d("9.99"),
		},
		{
			name:     "no matching tier uses sale price",
			product:  &Product{RegularPrice: d("10"), SalePrice: ptr(d("7.5")), Tiers: []Tier{{MinQuantity: 100, Price: d("5")}}},
			quantity: 3,
			want:     d("7.5"),
		},
		{
			name:     "zero sale price is ignored",
			product:  &Product{RegularPrice: d("10"), SalePrice: ptr(decimal.Zero)},
			quantity: 1,
			want:     d("10"),
		},
		{
			name: "equal min quantity picks lower price",
			product: &Product{
				RegularPrice: d("10"),
				Tiers: []Tier{
					{MinQuantity: 5, Price: d("9")},
					{MinQuantity: 5, Price: d("7")},
					{MinQuantity: 5, Price: d("8")},
				},
			},
			quantity: 6,
			want:     d("7"),
		},
		{
			name: "equal min quantity skips non-matching cheaper tier",
			product: &Product{
				RegularPrice: d("10"),
				Tiers: []Tier{
					{MinQuantity: 5, MaxQuantity: intPtr(5), Price: d("6")},
					{MinQuantity: 5, Price: d("8")},
				},
			},
			quantity: 7,
			want:     d("8"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveUnitPrice(tt.product, tt.quantity)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestResolveUnitPrice_Deterministic(t *testing.T) {
	p := &Product{
		RegularPrice: d("10"),
		Tiers: []Tier{
			{MinQuantity: 5, Price: d("9")},
			{MinQuantity: 5, Price: d("9")},
			{MinQuantity: 20, Price: d("4")},
		},
	}
	want := ResolveUnitPrice(p, 7)
	for range 100 {
		assert.True(t, want.Equal(ResolveUnitPrice(p, 7)))
	}
	// The input slice must not be reordered.
	assert.Equal(t, 5, p.Tiers[0].MinQuantity)
	assert.Equal(t, 20, p.Tiers[2].MinQuantity)
}

func TestProduct_Adjustment(t *testing.T) {
	p := &Product{
		Options: []Option{
			{Name: "Engraving", Values: []OptionValue{{Value: "yes", PriceAdjustment: d("4.50")}}},
		},
	}

	adj, ok := p.Adjustment("Engraving", "yes")
	assert.True(t, ok)
	assert.True(t, d("4.50").Equal(adj))

	_, ok = p.Adjustment("Engraving", "gold")
	assert.False(t, ok)

	_, ok = p.Adjustment("Color", "red")
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
