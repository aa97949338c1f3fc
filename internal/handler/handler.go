// Package handler exposes the gifting API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
)

// Idempotency deduplicates retried checkouts. See idempotency.RedisStore.
type Idempotency interface {
	Begin(ctx context.Context, userID, key string) (orderID string, err error)
	Complete(ctx context.Context, userID, key, orderID string) error
	Abort(ctx context.Context, userID, key string) error
}

// Handler serves the API routes.
type Handler struct {
	products product.Repository
	carts    cart.Repository
	orders   *order.Service
	// idem is optional; without it Idempotency-Key headers are ignored.
	idem     Idempotency
	validate *validator.Validate
}

// New returns a Handler. idem may be nil.
func New(products product.Repository, carts cart.Repository, orders *order.Service, idem Idempotency) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		orders:   orders,
		idem:     idem,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers the API on r. Every route requires an API key.
func (h *Handler) Routes(r chi.Router, sec *Security) {
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Middleware)

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Put("/cart/items", h.setCartItem)
		r.Delete("/cart/items/{productId}", h.removeCartItem)

		r.Post("/coupons/validate", h.validateCoupon)

		r.Post("/orders", h.placeOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Patch("/orders/{id}/cancel", h.cancelOrder)
		r.Patch("/orders/{id}/approve", h.approveOrder)
	})
}

// Router returns a chi router serving only the API routes.
func (h *Handler) Router(sec *Security) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})
	h.Routes(r, sec)
	return r
}
