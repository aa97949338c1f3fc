// Package memory implements the storage interfaces in process memory.
//
// Transactions are serialized by a single mutex and run against a copy of
// the state that replaces the committed state only when the transaction
// function succeeds, so a failed or timed out unit leaves no trace.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
)

var _ order.Store = (*Store)(nil)

// Store holds every table in memory.
type Store struct {
	mu sync.RWMutex
	st state
}

type state struct {
	products  map[string]product.Product
	coupons   map[string]coupon.Coupon
	usages    map[string][]coupon.Usage
	carts     map[string][]cart.Line
	orders    map[string]order.Order
	sequences map[string]int
	apiKeys   map[string]auth.APIKeyInfo
}

// New returns an empty Store.
func New() *Store {
	return &Store{st: state{
		products:  map[string]product.Product{},
		coupons:   map[string]coupon.Coupon{},
		usages:    map[string][]coupon.Usage{},
		carts:     map[string][]cart.Line{},
		orders:    map[string]order.Order{},
		sequences: map[string]int{},
		apiKeys:   map[string]auth.APIKeyInfo{},
	}}
}

func (s state) clone() state {
	return state{
		products:  maps.Clone(s.products),
		coupons:   maps.Clone(s.coupons),
		usages:    maps.Clone(s.usages),
		carts:     maps.Clone(s.carts),
		orders:    maps.Clone(s.orders),
		sequences: maps.Clone(s.sequences),
		apiKeys:   maps.Clone(s.apiKeys),
	}
}

// Do runs fn against a private copy of the state and commits it only if fn
// returns nil and ctx is still alive.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &Tx{st: s.st.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// PutCoupon inserts or replaces a coupon.
func (s *Store) PutCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.coupons[c.Code] = c
}

// PutAPIKey inserts or replaces an API key.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.apiKeys[k.KeyHash] = k
}

// Products returns the product repository view.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Coupons returns the coupon repository view.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Carts returns the cart repository view.
func (s *Store) Carts() *CartRepository { return &CartRepository{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// APIKeys returns the API key repository view.
func (s *Store) APIKeys() *APIKeyRepository { return &APIKeyRepository{s: s} }

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.Coupon != nil {
		c := *o.Coupon
		o.Coupon = &c
	}
	if o.Corporate != nil {
		c := *o.Corporate
		o.Corporate = &c
	}
	if o.Tracking != nil {
		t := *o.Tracking
		o.Tracking = &t
	}
	return o
}
