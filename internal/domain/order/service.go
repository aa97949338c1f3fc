package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/giftkart/internal/domain/cart"
	"github.com/xenking/giftkart/internal/domain/coupon"
	"github.com/xenking/giftkart/internal/domain/product"
)

// Deps are the storage collaborators of Service.
type Deps struct {
	Store    Store
	Orders   Repository
	Carts    cart.Repository
	Products product.Repository
	Coupons  coupon.Repository
}

// Options tune checkout behaviour. Zero values fall back to defaults.
type Options struct {
	Policy Policy
	// Timeout bounds the whole order creation. Default 5s.
	Timeout time.Duration
	// AutoConfirm moves non-corporate orders to confirmed right after
	// creation.
	AutoConfirm bool
	// Location decides the calendar day used in order numbers. Default UTC.
	Location *time.Location

	Notifier       Notifier
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Policy == (Policy{}) {
		o.Policy = DefaultPolicy()
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

// Service implements order creation and the order lifecycle.
type Service struct {
	store     Store
	orders    Repository
	carts     cart.Repository
	coupons   coupon.Repository
	snapshots *SnapshotBuilder

	policy      Policy
	timeout     time.Duration
	autoConfirm bool
	loc         *time.Location
	notifier    Notifier
	tracer      trace.Tracer
	metrics     *metrics

	now   func() time.Time
	newID func() string
}

// NewService creates an order Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	opts.setDefaults()

	m, err := newMetrics(opts.MeterProvider.Meter("giftkart/order"))
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}

	return &Service{
		store:       deps.Store,
		orders:      deps.Orders,
		carts:       deps.Carts,
		coupons:     deps.Coupons,
		snapshots:   NewSnapshotBuilder(deps.Products),
		policy:      opts.Policy,
		timeout:     opts.Timeout,
		autoConfirm: opts.AutoConfirm,
		loc:         opts.Location,
		notifier:    opts.Notifier,
		tracer:      opts.TracerProvider.Tracer("giftkart/order"),
		metrics:     m,
		now:         time.Now,
		newID:       newOrderID,
	}, nil
}

type metrics struct {
	created     metric.Int64Counter
	failed      metric.Int64Counter
	transitions metric.Int64Counter
	restored    metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("orders.checkout.failed",
		metric.WithDescription("Checkout attempts that did not create an order"),
	); err != nil {
		return nil, err
	}
	if m.transitions, err = meter.Int64Counter("orders.transitions",
		metric.WithDescription("Committed order status transitions"),
	); err != nil {
		return nil, err
	}
	if m.restored, err = meter.Int64Counter("orders.stock.restored",
		metric.WithDescription("Units returned to stock by cancellations"),
		metric.WithUnit("{unit}"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) checkoutFailed(ctx context.Context, err error) {
	m.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", failureReason(err))))
}

func failureReason(err error) string {
	var invalid *coupon.InvalidError
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrCartChanged):
		return "cart_changed"
	case errors.As(err, &invalid):
		return "invalid_coupon"
	case errors.Is(err, ErrOrderCreationTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
