package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/giftkart/internal/domain/cart"
)

const (
	listCartItemsSQL = `SELECT product_id, quantity, selections FROM cart_items
		WHERE user_id = $1 ORDER BY added_at, product_id`

	upsertCartItemSQL = `INSERT INTO cart_items (user_id, product_id, quantity, selections)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity, selections = EXCLUDED.selections`

	deleteCartItemSQL = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE user_id = $1`

	// Row locks taken by the delete make a concurrent take of the same cart
	// wait and then find nothing left.
	takeCartSQL = clearCartSQL + ` RETURNING product_id, quantity, selections`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// FindByUser returns the user's cart; users without one get an empty cart.
func (r *CartRepository) FindByUser(ctx context.Context, userID string) (*cart.Cart, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, fmt.Errorf("listing cart of %q: %w", userID, err)
	}
	return &cart.Cart{UserID: userID, Lines: lines}, nil
}

// SetLine inserts the line or replaces the existing line for its product.
func (r *CartRepository) SetLine(ctx context.Context, userID string, line cart.Line) error {
	if line.Quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	selections, err := json.Marshal(orEmpty(line.Selections))
	if err != nil {
		return fmt.Errorf("marshaling selections: %w", err)
	}
	if _, err := r.pool.Exec(ctx, upsertCartItemSQL, userID, line.ProductID, line.Quantity, selections); err != nil {
		return fmt.Errorf("setting cart line %q for %q: %w", line.ProductID, userID, err)
	}
	return nil
}

// RemoveLine deletes the line for productID; missing lines are ignored.
func (r *CartRepository) RemoveLine(ctx context.Context, userID, productID string) error {
	if _, err := r.pool.Exec(ctx, deleteCartItemSQL, userID, productID); err != nil {
		return fmt.Errorf("removing cart line %q for %q: %w", productID, userID, err)
	}
	return nil
}

// Clear empties the user's cart.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", userID, err)
	}
	return nil
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var (
		l          cart.Line
		selections []byte
	)
	if err := row.Scan(&l.ProductID, &l.Quantity, &selections); err != nil {
		return l, err
	}
	if err := json.Unmarshal(selections, &l.Selections); err != nil {
		return l, fmt.Errorf("decoding selections: %w", err)
	}
	return l, nil
}
