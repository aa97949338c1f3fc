package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/giftkart/internal/domain/product"
)

const productColumns = `id, sku, name, category, regular_price, sale_price,
	pricing_tiers, options, stock_quantity, is_active`

const (
	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			sku = EXCLUDED.sku, name = EXCLUDED.name, category = EXCLUDED.category,
			regular_price = EXCLUDED.regular_price, sale_price = EXCLUDED.sale_price,
			pricing_tiers = EXCLUDED.pricing_tiers, options = EXCLUDED.options,
			stock_quantity = EXCLUDED.stock_quantity, is_active = EXCLUDED.is_active,
			updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Upsert inserts the product or overwrites every column of an existing one.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	tiers, err := json.Marshal(orEmpty(p.Tiers))
	if err != nil {
		return fmt.Errorf("marshaling tiers of %q: %w", p.ID, err)
	}
	options, err := json.Marshal(orEmpty(p.Options))
	if err != nil {
		return fmt.Errorf("marshaling options of %q: %w", p.ID, err)
	}
	if _, err := r.pool.Exec(ctx, upsertProductSQL,
		p.ID, p.SKU, p.Name, p.Category, p.RegularPrice, p.SalePrice,
		tiers, options, p.StockQuantity, p.Active,
	); err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p              product.Product
		tiers, options []byte
	)
	if err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Category, &p.RegularPrice, &p.SalePrice,
		&tiers, &options, &p.StockQuantity, &p.Active,
	); err != nil {
		return p, err
	}
	if err := json.Unmarshal(tiers, &p.Tiers); err != nil {
		return p, fmt.Errorf("decoding tiers of %q: %w", p.ID, err)
	}
	if err := json.Unmarshal(options, &p.Options); err != nil {
		return p, fmt.Errorf("decoding options of %q: %w", p.ID, err)
	}
	return p, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
