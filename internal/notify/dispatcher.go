package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/order"
)

var _ order.Notifier = (*Dispatcher)(nil)

// DispatcherOptions tunes a Dispatcher. Zero values select defaults.
type DispatcherOptions struct {
	QueueSize int
	// PublishTimeout bounds a single publish attempt.
	PublishTimeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration
	MeterProvider   metric.MeterProvider
}

func (o *DispatcherOptions) setDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.MeterProvider == nil {
		o.MeterProvider = noop.NewMeterProvider()
	}
}

// Dispatcher implements order.Notifier. Events are queued and published by
// Run in the background; a failed or dropped event is logged and never
// affects the order that produced it.
type Dispatcher struct {
	pub     Publisher
	lg      *zap.Logger
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration

	// mu orders Notify against Close so nothing is queued after Run's
	// final drain.
	mu     sync.RWMutex
	closed bool
	queue  chan order.Event
	done   chan struct{}

	events metric.Int64Counter
}

// NewDispatcher returns a Dispatcher publishing through pub.
func NewDispatcher(pub Publisher, lg *zap.Logger, opts DispatcherOptions) (*Dispatcher, error) {
	opts.setDefaults()

	events, err := opts.MeterProvider.Meter("giftkart/notify").Int64Counter("notify.events",
		metric.WithDescription("Order events by delivery result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create events counter")
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "notify",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Dispatcher{
		pub:     pub,
		lg:      lg,
		breaker: breaker,
		timeout: opts.PublishTimeout,
		queue:   make(chan order.Event, opts.QueueSize),
		done:    make(chan struct{}),
		events:  events,
	}, nil
}

// Notify queues e. It never blocks: when the queue is full or the
// dispatcher is closed the event is dropped.
func (d *Dispatcher) Notify(ctx context.Context, e order.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, e, "closed")
		return
	}
	select {
	case d.queue <- e:
	default:
		d.drop(ctx, e, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, e order.Event, reason string) {
	d.events.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "dropped")))
	d.lg.Warn("Dropping order event",
		zap.String("reason", reason),
		zap.String("type", string(e.Type)),
		zap.String("order_id", e.OrderID),
	)
}

// Run publishes queued events until ctx is done or Close is called. After
// Close it drains what is already queued. When ctx is done the dispatcher
// closes and events still queued are counted as dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.queue:
			d.publish(ctx, e)
		case <-d.done:
			for {
				select {
				case e := <-d.queue:
					d.publish(ctx, e)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			d.Close()
			d.dropQueued(ctx)
			return nil
		}
	}
}

func (d *Dispatcher) dropQueued(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.drop(ctx, e, "stopped")
		default:
			return
		}
	}
}

// Close stops accepting events. Run returns once the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.done)
}

func (d *Dispatcher) publish(ctx context.Context, e order.Event) {
	m := Encode(e)
	_, err := d.breaker.Execute(func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return struct{}{}, d.pub.Publish(pctx, m)
	})
	if err != nil {
		d.events.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "failed")))
		d.lg.Error("Publish order event",
			zap.Error(err),
			zap.String("type", m.Type),
			zap.String("order_id", e.OrderID),
		)
		return
	}
	d.events.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "published")))
}
