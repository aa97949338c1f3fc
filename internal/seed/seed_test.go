package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/repository/memory"
)

func TestLoad_Catalog(t *testing.T) {
	d, err := Load("../../db/seed/catalog.json")
	require.NoError(t, err)
	assert.NotEmpty(t, d.Products)
	assert.NotEmpty(t, d.Coupons)
	assert.Len(t, d.APIKeys, 3)
}

func TestApply_Memory(t *testing.T) {
	ctx := context.Background()
	d, err := Parse(strings.NewReader(`{
		"products": [
			{"id":"mug","name":"Mug","regularPrice":"10","stockQuantity":5},
			{"id":"cap","name":"Cap","regularPrice":"7.5","stockQuantity":0,"active":false}
		],
		"coupons": [{"code":" save5 ","discountType":"fixed","value":"5","minOrderValue":"0"}],
		"apiKeys": [{"id":"k1","key":"secret","userId":"u1","role":"admin"}]
	}`))
	require.NoError(t, err)

	store := memory.New()
	require.NoError(t, Apply(ctx, zap.NewNop(), NewMemorySink(store), d, []byte("pepper")))

	mug, err := store.Products().GetByID(ctx, "mug")
	require.NoError(t, err)
	assert.True(t, mug.Active)
	assert.Equal(t, 5, mug.StockQuantity)

	hat, err := store.Products().GetByID(ctx, "cap")
	require.NoError(t, err)
	assert.False(t, hat.Active)

	c, err := store.Coupons().FindByCode(ctx, "SAVE5")
	require.NoError(t, err)
	assert.Equal(t, coupon.DiscountFixed, c.DiscountType)
	assert.True(t, c.Active)

	k, err := store.APIKeys().FindByHash(ctx, auth.HashKey([]byte("pepper"), "secret"))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, k.Role)
	assert.Equal(t, "u1", k.UserID)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown field", `{"widgets":[]}`, "decode seed data"},
		{"missing product id", `{"products":[{"name":"x","regularPrice":"1"}]}`, "missing id"},
		{"duplicate product", `{"products":[{"id":"a","name":"x","regularPrice":"1"},{"id":"a","name":"y","regularPrice":"1"}]}`, "duplicate id"},
		{"negative stock", `{"products":[{"id":"a","name":"x","regularPrice":"1","stockQuantity":-1}]}`, "negative stock"},
		{"bad discount type", `{"coupons":[{"code":"X","discountType":"bogo","value":"1"}]}`, "unknown discount type"},
		{"bad role", `{"apiKeys":[{"id":"k","key":"s","userId":"u","role":"root"}]}`, "unknown role"},
		{"missing key", `{"apiKeys":[{"id":"k","userId":"u","role":"admin"}]}`, "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

type failingSink struct{ MemorySink }

func (failingSink) UpsertCoupon(context.Context, coupon.Coupon) error {
	return errors.New("boom")
}

func TestApply_SinkError(t *testing.T) {
	d := &Data{
		Products: []Product{{ID: "a", Name: "A"}},
		Coupons:  []Coupon{{Code: "X", DiscountType: "fixed"}},
	}
	sink := failingSink{NewMemorySink(memory.New())}
	err := Apply(context.Background(), zap.NewNop(), sink, d, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert coupon X")
}
