package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyPrice(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		subtotal string
		discount string
		want     Pricing
	}{
		{
			name:     "below free shipping threshold",
			subtotal: "20",
			discount: "0",
			want:     Pricing{Subtotal: d("20"), Discount: d("0"), Tax: d("3.6"), Shipping: d("25"), Total: d("48.6")},
		},
		{
			name:     "free shipping at threshold",
			subtotal: "500",
			discount: "0",
			want:     Pricing{Subtotal: d("500"), Discount: d("0"), Tax: d("90"), Shipping: d("0"), Total: d("590")},
		},
		{
			name:     "tax on discounted subtotal, shipping on undiscounted",
			subtotal: "600",
			discount: "150",
			want:     Pricing{Subtotal: d("600"), Discount: d("150"), Tax: d("81"), Shipping: d("0"), Total: d("531")},
		},
		{
			name:     "discount above subtotal is clamped",
			subtotal: "20",
			discount: "30",
			want:     Pricing{Subtotal: d("20"), Discount: d("20"), Tax: d("0"), Shipping: d("25"), Total: d("25")},
		},
		{
			name:     "rounds to cents",
			subtotal: "33.33",
			discount: "0",
			want:     Pricing{Subtotal: d("33.33"), Discount: d("0"), Tax: d("6"), Shipping: d("25"), Total: d("64.33")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Price(d(tt.subtotal), d(tt.discount))
			assert.True(t, tt.want.Subtotal.Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, tt.want.Discount.Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, tt.want.Tax.Equal(got.Tax), "tax %s", got.Tax)
			assert.True(t, tt.want.Shipping.Equal(got.Shipping), "shipping %s", got.Shipping)
			assert.True(t, tt.want.Total.Equal(got.Total), "total %s", got.Total)
		})
	}
}

func TestFormatNumber(t *testing.T) {
	day := time.Date(2024, 5, 17, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "ORD2405170007", FormatNumber(day, 7))
	assert.Equal(t, "ORD2405171234", FormatNumber(day, 1234))
	assert.Equal(t, "ORD24051712345", FormatNumber(day, 12345))
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2024, 5, 17, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), Day(at, nil))
	assert.Equal(t, time.Date(2024, 5, 18, 0, 0, 0, 0, loc), Day(at, loc))
}
