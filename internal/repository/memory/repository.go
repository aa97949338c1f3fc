package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
)

var (
	_ product.Repository = (*ProductRepository)(nil)
	_ coupon.Repository  = (*CouponRepository)(nil)
	_ cart.Repository    = (*CartRepository)(nil)
	_ order.Repository   = (*OrderRepository)(nil)
	_ auth.Repository    = (*APIKeyRepository)(nil)
)

// ProductRepository reads products from a Store.
type ProductRepository struct{ s *Store }

// List returns all products ordered by ID.
func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(r.s.st.products))
	for _, p := range r.s.st.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b product.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.st.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// CouponRepository reads coupons from a Store.
type CouponRepository struct{ s *Store }

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.st.coupons[code]
	if !ok {
		return nil, coupon.ErrCouponNotFound
	}
	return &c, nil
}

func (r *CouponRepository) Usages(_ context.Context, code, userID string) ([]coupon.Usage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return usagesOf(r.s.st, code, userID), nil
}

// CartRepository stores carts in a Store.
type CartRepository struct{ s *Store }

func (r *CartRepository) FindByUser(_ context.Context, userID string) (*cart.Cart, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return &cart.Cart{UserID: userID, Lines: slices.Clone(r.s.st.carts[userID])}, nil
}

// SetLine replaces the line for the same product or appends a new one.
func (r *CartRepository) SetLine(_ context.Context, userID string, line cart.Line) error {
	if line.Quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	lines := slices.Clone(r.s.st.carts[userID])
	i := slices.IndexFunc(lines, func(l cart.Line) bool { return l.ProductID == line.ProductID })
	if i >= 0 {
		lines[i] = line
	} else {
		lines = append(lines, line)
	}
	r.s.st.carts[userID] = lines
	return nil
}

func (r *CartRepository) RemoveLine(_ context.Context, userID, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.st.carts[userID] = slices.DeleteFunc(slices.Clone(r.s.st.carts[userID]), func(l cart.Line) bool {
		return l.ProductID == productID
	})
	return nil
}

func (r *CartRepository) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.st.carts, userID)
	return nil
}

// OrderRepository reads orders from a Store.
type OrderRepository struct{ s *Store }

func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []order.Order
	for _, o := range r.s.st.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.Number, a.Number)
	})
	return out, nil
}

// APIKeyRepository reads API keys from a Store.
type APIKeyRepository struct{ s *Store }

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.st.apiKeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}
