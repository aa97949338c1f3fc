// Package notify delivers committed order events to external brokers.
package notify

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/giftkart/internal/domain/order"
)

// Message is an encoded event ready for a broker.
type Message struct {
	// Key groups messages of one order on partitioned transports.
	Key  string
	Type string
	Body []byte
}

// Encode renders the event as a JSON message.
func Encode(ev order.Event) Message {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str(string(ev.Type)) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(ev.OrderID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Str(ev.Number) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(ev.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(ev.Status)) })
		if ev.Previous != "" {
			e.Field("previousStatus", func(e *jx.Encoder) { e.Str(string(ev.Previous)) })
		}
		e.Field("total", func(e *jx.Encoder) { e.Str(ev.Total.StringFixed(2)) })
		if ev.Actor != "" {
			e.Field("actor", func(e *jx.Encoder) { e.Str(ev.Actor) })
		}
		e.Field("at", func(e *jx.Encoder) { e.Str(ev.At.UTC().Format(time.RFC3339Nano)) })
	})
	return Message{
		Key:  ev.OrderID,
		Type: string(ev.Type),
		Body: e.Bytes(),
	}
}
