package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an order notification.
type EventType string

const (
	EventCreated       EventType = "order.created"
	EventStatusChanged EventType = "order.status_changed"
)

// Event is emitted after an order change has been committed.
type Event struct {
	Type     EventType
	OrderID  string
	Number   string
	UserID   string
	Status   Status
	Previous Status
	Total    decimal.Decimal
	Actor    string
	At       time.Time
}

// Notifier receives committed order events. Implementations must not block
// the caller for long and cannot fail the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

func newEvent(typ EventType, o *Order, prev Status, actor string) Event {
	return Event{
		Type:     typ,
		OrderID:  o.ID,
		Number:   o.Number,
		UserID:   o.UserID,
		Status:   o.Status,
		Previous: prev,
		Total:    o.Pricing.Total,
		Actor:    actor,
		At:       o.UpdatedAt,
	}
}
