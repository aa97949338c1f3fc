package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
)

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r)
}

// writeCart renders the caller's cart priced as it would be at checkout.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request) {
	q, err := h.orders.Quote(r.Context(), principal(r), "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

func (h *Handler) setCartItem(w http.ResponseWriter, r *http.Request) {
	var req setCartItemRequest
	if err := h.readBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// Reject unknown products and selections now rather than at checkout.
	p, err := h.products.GetByID(r.Context(), req.ProductID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !p.Active {
		writeError(w, r, &order.ProductUnavailableError{ProductID: p.ID, Name: p.Name})
		return
	}
	line := cart.Line{ProductID: p.ID, Quantity: req.Quantity}
	for _, s := range req.Selections {
		if _, ok := p.Adjustment(s.Option, s.Value); !ok {
			writeError(w, r, &order.InvalidSelectionError{ProductID: p.ID, Option: s.Option, Value: s.Value})
			return
		}
		line.Selections = append(line.Selections, cart.Selection{Option: s.Option, Value: s.Value})
	}

	if err := h.carts.SetLine(r.Context(), principal(r).UserID, line); err != nil {
		writeError(w, r, errors.Wrap(err, "set cart line"))
		return
	}
	h.writeCart(w, r)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.RemoveLine(r.Context(), principal(r).UserID, chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, errors.Wrap(err, "remove cart line"))
		return
	}
	h.writeCart(w, r)
}

// validateCoupon previews a coupon against the current cart. Rejections are
// a normal answer here, not an error response.
func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := h.readBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.orders.Quote(r.Context(), principal(r), req.Code)
	if err == nil && q.Coupon == nil {
		err = &coupon.InvalidError{Code: req.Code, Reason: coupon.ErrCouponNotFound}
	}
	if err != nil {
		reason, ok := couponRejection(err)
		if !ok {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("valid", func(e *jx.Encoder) { e.Bool(false) })
				str(e, "reason", reason)
			})
		})
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(true) })
			e.Field("discount", func(e *jx.Encoder) { money(e, q.Coupon.Discount) })
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, q.Coupon) })
			e.Field("pricing", func(e *jx.Encoder) { encodePricing(e, q.Pricing) })
		})
	})
}

func couponRejection(err error) (string, bool) {
	var invalid *coupon.InvalidError
	switch {
	case errors.As(err, &invalid):
		return invalid.Reason.Error(), true
	case errors.Is(err, order.ErrEmptyCart):
		return err.Error(), true
	default:
		return "", false
	}
}
