package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []Status{
		StatusPending, StatusPendingApproval, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled,
	}
	allowed := map[[2]Status]bool{
		{StatusPending, StatusConfirmed}:         true,
		{StatusPending, StatusCancelled}:         true,
		{StatusPendingApproval, StatusConfirmed}: true,
		{StatusPendingApproval, StatusCancelled}: true,
		{StatusConfirmed, StatusProcessing}:      true,
		{StatusConfirmed, StatusCancelled}:       true,
		{StatusProcessing, StatusShipped}:        true,
		{StatusProcessing, StatusCancelled}:      true,
		{StatusShipped, StatusDelivered}:         true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.False(t, Status("lost").Valid())
}

func TestOrderApply(t *testing.T) {
	created := time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC)
	o := &Order{Status: StatusPending, CreatedAt: created}
	o.History.append(HistoryEntry{Status: StatusPending, At: created, Actor: "u1"})

	steps := []Transition{
		{To: StatusConfirmed, Actor: "admin"},
		{To: StatusProcessing, Actor: "admin"},
		{To: StatusShipped, Actor: "admin", Tracking: &Tracking{Carrier: "DHL", Number: "123"}},
		{To: StatusDelivered, Actor: "admin", Notes: "signed by reception"},
	}
	for i, step := range steps {
		at := created.Add(time.Duration(i+1) * time.Hour)
		entry, err := o.apply(step, at)
		require.NoError(t, err)
		assert.Equal(t, step.To, entry.Status)
		assert.Equal(t, at, entry.At)
		assert.Equal(t, step.To, o.Status)
	}

	require.NotNil(t, o.ConfirmedAt)
	require.NotNil(t, o.ProcessingAt)
	require.NotNil(t, o.ShippedAt)
	require.NotNil(t, o.DeliveredAt)
	assert.Nil(t, o.CancelledAt)
	assert.Equal(t, &Tracking{Carrier: "DHL", Number: "123"}, o.Tracking)

	entries := o.History.Entries()
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i].At.After(entries[i-1].At), "history must be chronological")
	}
	assert.Equal(t, "signed by reception", entries[4].Notes)
}

func TestOrderApply_InvalidLeavesOrderUntouched(t *testing.T) {
	o := &Order{Status: StatusShipped}
	o.History.append(HistoryEntry{Status: StatusShipped})

	_, err := o.apply(Transition{To: StatusCancelled, CancelReason: "too late"}, time.Now())

	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusShipped, tErr.From)
	assert.Equal(t, StatusCancelled, tErr.To)
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, StatusShipped, o.Status)
	assert.Nil(t, o.CancelledAt)
	assert.Empty(t, o.CancelReason)
	assert.Equal(t, 1, o.History.Len())
}

func TestOrderApply_SameStatusRejected(t *testing.T) {
	o := &Order{Status: StatusConfirmed}
	_, err := o.apply(Transition{To: StatusConfirmed}, time.Now())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestHistory_CopiesAreIndependent(t *testing.T) {
	var h History
	h.append(HistoryEntry{Status: StatusPending})
	snapshot := h

	h.append(HistoryEntry{Status: StatusConfirmed})
	other := snapshot
	other.append(HistoryEntry{Status: StatusCancelled})

	assert.Equal(t, 1, snapshot.Len())
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, StatusConfirmed, last.Status)

	entries := h.Entries()
	entries[0].Status = StatusDelivered
	first := h.Entries()[0]
	assert.Equal(t, StatusPending, first.Status)
}
