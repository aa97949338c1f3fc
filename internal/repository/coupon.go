package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/giftkart/internal/domain/coupon"
)

const couponColumns = `code, description, discount_type, value, max_discount, min_order_value,
	valid_from, valid_until, usage_limit_total, usage_limit_per_user, used_count, is_active`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE code = $1`

	lockCouponSQL = getCouponByCodeSQL + ` FOR UPDATE`

	listCouponUsagesSQL = `SELECT user_id, order_id, used_at FROM coupon_usages
		WHERE coupon_code = $1 AND user_id = $2 ORDER BY id`

	// The WHERE clause re-checks the total limit so the counter can never
	// pass it even if the caller skipped the row lock.
	incrementCouponUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit_total IS NULL OR used_count < usage_limit_total)`

	insertCouponUsageSQL = `INSERT INTO coupon_usages (coupon_code, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)`

	upsertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description, discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value, max_discount = EXCLUDED.max_discount,
			min_order_value = EXCLUDED.min_order_value, valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until, usage_limit_total = EXCLUDED.usage_limit_total,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user, is_active = EXCLUDED.is_active`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its normalized code. Inactive coupons are
// returned too so the evaluator can report why they are rejected.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// Usages returns the user's entries of the coupon usage log.
func (r *CouponRepository) Usages(ctx context.Context, code, userID string) ([]coupon.Usage, error) {
	return couponUsages(ctx, r.pool, code, userID)
}

// Upsert inserts the coupon or updates its rule. UsedCount is never
// overwritten.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	if _, err := r.pool.Exec(ctx, upsertCouponSQL, couponArgs(c)...); err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

const upsertBatchSize = 1000

// UpsertMany upserts coupons in pipelined batches. Each batch is applied
// atomically; earlier batches stay applied when a later one fails.
func (r *CouponRepository) UpsertMany(ctx context.Context, cs []coupon.Coupon) error {
	for start := 0; start < len(cs); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(cs))
		err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			b := &pgx.Batch{}
			for _, c := range cs[start:end] {
				b.Queue(upsertCouponSQL, couponArgs(c)...)
			}
			return tx.SendBatch(ctx, b).Close()
		})
		if err != nil {
			return fmt.Errorf("upserting coupons %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func couponArgs(c coupon.Coupon) []any {
	return []any{
		c.Code, c.Description, string(c.DiscountType), c.Value, c.MaxDiscount, c.MinOrderValue,
		c.ValidFrom, c.ValidUntil, c.UsageLimitTotal, c.UsageLimitPerUser, c.UsedCount, c.Active,
	}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func findCoupon(ctx context.Context, q querier, query, code string) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrCouponNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

func couponUsages(ctx context.Context, q querier, code, userID string) ([]coupon.Usage, error) {
	rows, err := q.Query(ctx, listCouponUsagesSQL, code, userID)
	if err != nil {
		return nil, fmt.Errorf("listing usages of coupon %q: %w", code, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Usage, error) {
		var u coupon.Usage
		err := row.Scan(&u.UserID, &u.OrderID, &u.UsedAt)
		return u, err
	})
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.Code, &c.Description, &discountType, &c.Value, &c.MaxDiscount, &c.MinOrderValue,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimitTotal, &c.UsageLimitPerUser, &c.UsedCount, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
