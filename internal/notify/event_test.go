package notify

import (
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/giftkart/internal/domain/order"
)

func TestEncode(t *testing.T) {
	at := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)
	m := Encode(order.Event{
		Type:     order.EventStatusChanged,
		OrderID:  "o-1",
		Number:   "ORD2405170001",
		UserID:   "u-1",
		Status:   order.StatusConfirmed,
		Previous: order.StatusPending,
		Total:    decimal.RequireFromString("48.6"),
		Actor:    "admin",
		At:       at,
	})

	assert.Equal(t, "o-1", m.Key)
	assert.Equal(t, "order.status_changed", m.Type)
	assert.JSONEq(t, `{
		"type": "order.status_changed",
		"orderId": "o-1",
		"orderNumber": "ORD2405170001",
		"userId": "u-1",
		"status": "confirmed",
		"previousStatus": "pending",
		"total": "48.60",
		"actor": "admin",
		"at": "2024-05-17T10:30:00Z"
	}`, string(m.Body))
}

func TestEncode_OmitsEmptyOptionalFields(t *testing.T) {
	m := Encode(order.Event{Type: order.EventCreated, OrderID: "o-1", Status: order.StatusPending})

	fields := map[string]bool{}
	err := jx.DecodeBytes(m.Body).Obj(func(d *jx.Decoder, key string) error {
		fields[key] = true
		return d.Skip()
	})
	require.NoError(t, err)
	assert.False(t, fields["previousStatus"])
	assert.False(t, fields["actor"])
	assert.True(t, fields["total"])
}
