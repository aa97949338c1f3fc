// Package seed loads catalog fixtures (products, coupons and API keys) from
// JSON and writes them to a storage backend.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/product"
)

// Data is the content of a seed file.
type Data struct {
	Products []Product `json:"products"`
	Coupons  []Coupon  `json:"coupons"`
	APIKeys  []APIKey  `json:"apiKeys"`
}

type Product struct {
	ID            string           `json:"id"`
	SKU           string           `json:"sku"`
	Name          string           `json:"name"`
	Category      string           `json:"category"`
	RegularPrice  decimal.Decimal  `json:"regularPrice"`
	SalePrice     *decimal.Decimal `json:"salePrice,omitempty"`
	Tiers         []product.Tier   `json:"tiers,omitempty"`
	Options       []product.Option `json:"options,omitempty"`
	StockQuantity int              `json:"stockQuantity"`
	// Active defaults to true when omitted.
	Active *bool `json:"active,omitempty"`
}

type Coupon struct {
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	DiscountType      string           `json:"discountType"`
	Value             decimal.Decimal  `json:"value"`
	MaxDiscount       *decimal.Decimal `json:"maxDiscount,omitempty"`
	MinOrderValue     decimal.Decimal  `json:"minOrderValue"`
	ValidFrom         *time.Time       `json:"validFrom,omitempty"`
	ValidUntil        *time.Time       `json:"validUntil,omitempty"`
	UsageLimitTotal   *int             `json:"usageLimitTotal,omitempty"`
	UsageLimitPerUser int              `json:"usageLimitPerUser"`
	Active            *bool            `json:"active,omitempty"`
}

// APIKey carries the plaintext key; only its hash is stored.
type APIKey struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Name   string `json:"name"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Load reads and validates the seed file at path.
func Load(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Parse decodes and validates seed data.
func Parse(r io.Reader) (*Data, error) {
	var d Data
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, errors.Wrap(err, "decode seed data")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Data) validate() error {
	seen := make(map[string]struct{}, len(d.Products))
	for i, p := range d.Products {
		switch {
		case p.ID == "":
			return errors.Errorf("product #%d: missing id", i)
		case p.Name == "":
			return errors.Errorf("product %q: missing name", p.ID)
		case p.RegularPrice.IsNegative():
			return errors.Errorf("product %q: negative price", p.ID)
		case p.StockQuantity < 0:
			return errors.Errorf("product %q: negative stock", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return errors.Errorf("product %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	for i, c := range d.Coupons {
		if coupon.NormalizeCode(c.Code) == "" {
			return errors.Errorf("coupon #%d: missing code", i)
		}
		if !coupon.DiscountType(c.DiscountType).Valid() {
			return errors.Errorf("coupon %q: unknown discount type %q", c.Code, c.DiscountType)
		}
	}
	for i, k := range d.APIKeys {
		switch {
		case k.ID == "" || k.Key == "" || k.UserID == "":
			return errors.Errorf("api key #%d: id, key and userId are required", i)
		case !auth.Role(k.Role).Valid():
			return errors.Errorf("api key %q: unknown role %q", k.ID, k.Role)
		}
	}
	return nil
}

// Sink receives seeded records. Upserts must be idempotent.
type Sink interface {
	UpsertProduct(ctx context.Context, p product.Product) error
	UpsertCoupon(ctx context.Context, c coupon.Coupon) error
	UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error
}

// Apply writes d to sink, hashing API keys with pepper.
func Apply(ctx context.Context, lg *zap.Logger, sink Sink, d *Data, pepper []byte) error {
	for _, p := range d.Products {
		if err := sink.UpsertProduct(ctx, p.toDomain()); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}
	lg.Info("Seeded products", zap.Int("count", len(d.Products)))

	for _, c := range d.Coupons {
		if err := sink.UpsertCoupon(ctx, c.toDomain()); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}
	lg.Info("Seeded coupons", zap.Int("count", len(d.Coupons)))

	for _, k := range d.APIKeys {
		info := auth.APIKeyInfo{
			ID:      k.ID,
			KeyHash: auth.HashKey(pepper, k.Key),
			Name:    k.Name,
			UserID:  k.UserID,
			Role:    auth.Role(k.Role),
		}
		if err := sink.UpsertAPIKey(ctx, info); err != nil {
			return errors.Wrapf(err, "upsert api key %s", k.ID)
		}
	}
	lg.Info("Seeded API keys", zap.Int("count", len(d.APIKeys)))
	return nil
}

func (p Product) toDomain() product.Product {
	sku := p.SKU
	if sku == "" {
		sku = p.ID
	}
	return product.Product{
		ID:            p.ID,
		SKU:           sku,
		Name:          p.Name,
		Category:      p.Category,
		RegularPrice:  p.RegularPrice,
		SalePrice:     p.SalePrice,
		Tiers:         p.Tiers,
		Options:       p.Options,
		StockQuantity: p.StockQuantity,
		Active:        p.Active == nil || *p.Active,
	}
}

func (c Coupon) toDomain() coupon.Coupon {
	return coupon.Coupon{
		Code:              coupon.NormalizeCode(c.Code),
		Description:       c.Description,
		DiscountType:      coupon.DiscountType(c.DiscountType),
		Value:             c.Value,
		MaxDiscount:       c.MaxDiscount,
		MinOrderValue:     c.MinOrderValue,
		ValidFrom:         c.ValidFrom,
		ValidUntil:        c.ValidUntil,
		UsageLimitTotal:   c.UsageLimitTotal,
		UsageLimitPerUser: c.UsageLimitPerUser,
		Active:            c.Active == nil || *c.Active,
	}
}
