package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
	"github.com/xenking/giftkart/internal/idempotency"
)

var (
	errUnauthenticated  = errors.New("missing or invalid api key")
	errRouteNotFound    = errors.New("route not found")
	errMethodNotAllowed = errors.New("method not allowed")
)

// badRequestError is a malformed request body, path or header.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &badRequestError{msg: msg, err: err}
}

// apiError is the rendered form of an error.
type apiError struct {
	status  int
	kind    string
	message string
	details func(e *jx.Encoder)
}

func classify(err error) apiError {
	var (
		badReq     *badRequestError
		invalid    validator.ValidationErrors
		stock      *order.InsufficientStockError
		unavail    *order.ProductUnavailableError
		selection  *order.InvalidSelectionError
		quantity   *order.InvalidQuantityError
		couponErr  *coupon.InvalidError
		transition *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &invalid):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "BadRequest",
			message: "request validation failed",
			details: func(e *jx.Encoder) {
				for _, fe := range invalid {
					e.Field(fe.Namespace(), func(e *jx.Encoder) { e.Str(fe.Tag()) })
				}
			},
		}
	case errors.As(err, &badReq):
		return apiError{status: http.StatusBadRequest, kind: "BadRequest", message: badReq.Error()}
	case errors.Is(err, errUnauthenticated):
		return apiError{status: http.StatusUnauthorized, kind: "Unauthenticated", message: err.Error()}
	case errors.Is(err, order.ErrEmptyCart):
		return apiError{status: http.StatusBadRequest, kind: "EmptyCart", message: err.Error()}
	case errors.As(err, &stock):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "InsufficientStock",
			message: stock.Error(),
			details: func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(stock.ProductID) })
				e.Field("requested", func(e *jx.Encoder) { e.Int(stock.Requested) })
				e.Field("available", func(e *jx.Encoder) { e.Int(stock.Available) })
			},
		}
	case errors.As(err, &unavail):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "ProductUnavailable",
			message: unavail.Error(),
			details: func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(unavail.ProductID) })
			},
		}
	case errors.As(err, &selection):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "InvalidSelection",
			message: selection.Error(),
			details: func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(selection.ProductID) })
				e.Field("option", func(e *jx.Encoder) { e.Str(selection.Option) })
				e.Field("value", func(e *jx.Encoder) { e.Str(selection.Value) })
			},
		}
	case errors.As(err, &quantity), errors.Is(err, cart.ErrInvalidQuantity):
		return apiError{status: http.StatusBadRequest, kind: "InvalidQuantity", message: err.Error()}
	case errors.As(err, &couponErr):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "InvalidCoupon",
			message: couponErr.Error(),
			details: func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Str(couponErr.Code) })
				e.Field("reason", func(e *jx.Encoder) { e.Str(couponErr.Reason.Error()) })
			},
		}
	case errors.As(err, &transition):
		return apiError{
			status:  http.StatusBadRequest,
			kind:    "InvalidTransition",
			message: transition.Error(),
			details: func(e *jx.Encoder) {
				e.Field("from", func(e *jx.Encoder) { e.Str(string(transition.From)) })
				e.Field("to", func(e *jx.Encoder) { e.Str(string(transition.To)) })
			},
		}
	case errors.Is(err, order.ErrUnauthorized):
		return apiError{status: http.StatusForbidden, kind: "Unauthorized", message: err.Error()}
	case errors.Is(err, order.ErrNotFound), errors.Is(err, product.ErrNotFound), errors.Is(err, errRouteNotFound):
		return apiError{status: http.StatusNotFound, kind: "NotFound", message: err.Error()}
	case errors.Is(err, errMethodNotAllowed):
		return apiError{status: http.StatusMethodNotAllowed, kind: "MethodNotAllowed", message: err.Error()}
	case errors.Is(err, order.ErrCartChanged):
		return apiError{status: http.StatusConflict, kind: "CartChanged", message: err.Error()}
	case errors.Is(err, idempotency.ErrInProgress):
		return apiError{status: http.StatusConflict, kind: "IdempotencyInProgress", message: err.Error()}
	case errors.Is(err, order.ErrOrderCreationTimeout):
		return apiError{status: http.StatusServiceUnavailable, kind: "OrderCreationTimeout", message: err.Error()}
	default:
		return apiError{status: http.StatusInternalServerError, kind: "Internal", message: "internal server error"}
	}
}

// writeError renders err as {"code","error","message","details"}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	if ae.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(ae.status) })
		e.Field("error", func(e *jx.Encoder) { e.Str(ae.kind) })
		e.Field("message", func(e *jx.Encoder) { e.Str(ae.message) })
		if ae.details != nil {
			e.Field("details", func(e *jx.Encoder) { e.Obj(ae.details) })
		}
	})
	writeBody(w, ae.status, e.Bytes())
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
