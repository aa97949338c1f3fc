package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/idempotency"
)

const (
	// IdempotencyKeyHeader makes POST /orders safe to retry.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from an earlier request.
	ReplayedHeader = "Idempotent-Replayed"
)

func (req *placeOrderRequest) toDomain() order.PlaceOrderRequest {
	out := order.PlaceOrderRequest{
		Shipping: order.ShippingInfo{
			Name:       req.Shipping.Name,
			Phone:      req.Shipping.Phone,
			Email:      req.Shipping.Email,
			Line1:      req.Shipping.Line1,
			Line2:      req.Shipping.Line2,
			City:       req.Shipping.City,
			State:      req.Shipping.State,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
	}
	if c := req.Corporate; c != nil {
		out.Corporate = &order.CorporateDetails{
			CompanyName:  c.CompanyName,
			ContactName:  c.ContactName,
			ContactEmail: c.ContactEmail,
			PONumber:     c.PONumber,
		}
	}
	return out
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := h.readBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	p := principal(r)

	key := r.Header.Get(IdempotencyKeyHeader)
	if key != "" && !validIdempotencyKey(key) {
		writeError(w, r, badRequest("invalid "+IdempotencyKeyHeader+" header", nil))
		return
	}
	if key == "" || h.idem == nil {
		h.createOrder(w, r, p, req)
		return
	}

	lg := zctx.From(ctx)
	prev, err := h.idem.Begin(ctx, p.UserID, key)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		writeError(w, r, err)
		return
	case err != nil:
		// Checkout stays available while the key store is down.
		lg.Warn("Idempotency store unavailable", zap.Error(err))
		h.createOrder(w, r, p, req)
		return
	case prev != "":
		o, err := h.orders.Get(ctx, p, prev)
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set(ReplayedHeader, "true")
		writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
		return
	}

	o, ok := h.createOrder(w, r, p, req)
	if !ok {
		if err := h.idem.Abort(ctx, p.UserID, key); err != nil {
			lg.Warn("Release idempotency key", zap.Error(err))
		}
		return
	}
	if err := h.idem.Complete(ctx, p.UserID, key, o.ID); err != nil {
		// The order exists; a retry with this key will create another one.
		lg.Warn("Complete idempotency key", zap.Error(err), zap.String("order_id", o.ID))
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, p auth.Principal, req placeOrderRequest) (*order.Order, bool) {
	o, err := h.orders.PlaceOrder(r.Context(), p, req.toDomain())
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
	return o, true
}

func validIdempotencyKey(key string) bool {
	if len(key) > 255 {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < '!' || key[i] > '~' {
			return false
		}
	}
	return true
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range orders {
				encodeOrder(e, &orders[i])
			}
		})
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	h.writeOrder(w, r, o, err)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.readBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u := order.StatusUpdate{Status: order.Status(req.Status), Notes: req.Notes}
	if req.Carrier != "" || req.TrackingNumber != "" {
		u.Tracking = &order.Tracking{Carrier: req.Carrier, Number: req.TrackingNumber}
	}
	o, err := h.orders.UpdateStatus(r.Context(), principal(r), chi.URLParam(r, "id"), u)
	h.writeOrder(w, r, o, err)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := h.readBody(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}
	o, err := h.orders.Cancel(r.Context(), principal(r), chi.URLParam(r, "id"), req.Reason)
	h.writeOrder(w, r, o, err)
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := h.readBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.Approve(r.Context(), principal(r), chi.URLParam(r, "id"), *req.Approved, req.Notes)
	h.writeOrder(w, r, o, err)
}

func (h *Handler) writeOrder(w http.ResponseWriter, r *http.Request, o *order.Order, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}
