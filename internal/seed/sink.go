package seed

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/product"
	"github.com/xenking/giftkart/internal/repository"
	"github.com/xenking/giftkart/internal/repository/memory"
)

// PostgresSink writes seed data through the PostgreSQL repositories.
type PostgresSink struct {
	products *repository.ProductRepository
	coupons  *repository.CouponRepository
	apikeys  *repository.APIKeyRepository
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{
		products: repository.NewProductRepository(pool),
		coupons:  repository.NewCouponRepository(pool),
		apikeys:  repository.NewAPIKeyRepository(pool),
	}
}

func (s *PostgresSink) UpsertProduct(ctx context.Context, p product.Product) error {
	return s.products.Upsert(ctx, p)
}

func (s *PostgresSink) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	return s.coupons.Upsert(ctx, c)
}

func (s *PostgresSink) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	return s.apikeys.Upsert(ctx, k)
}

// MemorySink writes seed data into an in-memory store.
type MemorySink struct {
	store *memory.Store
}

func NewMemorySink(store *memory.Store) MemorySink {
	return MemorySink{store: store}
}

func (s MemorySink) UpsertProduct(_ context.Context, p product.Product) error {
	s.store.PutProduct(p)
	return nil
}

func (s MemorySink) UpsertCoupon(_ context.Context, c coupon.Coupon) error {
	s.store.PutCoupon(c)
	return nil
}

func (s MemorySink) UpsertAPIKey(_ context.Context, k auth.APIKeyInfo) error {
	s.store.PutAPIKey(k)
	return nil
}
