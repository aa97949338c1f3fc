package order

import (
	"slices"
	"time"
)

var transitions = map[Status][]Status{
	StatusPending:         {StatusConfirmed, StatusCancelled},
	StatusPendingApproval: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusShipped, StatusCancelled},
	StatusShipped:         {StatusDelivered},
	StatusDelivered:       {},
	StatusCancelled:       {},
}

// CanTransition reports whether the lifecycle allows moving from one status
// to another. A status never transitions to itself.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Transition describes one requested status change.
type Transition struct {
	To    Status
	Actor string
	Notes string
	// Tracking is attached when moving to shipped.
	Tracking *Tracking
	// CancelReason is recorded when moving to cancelled.
	CancelReason string

	approval bool
}

// apply validates t against the lifecycle and, when allowed, updates the
// status, its timestamp and the history. On error o is left untouched.
func (o *Order) apply(t Transition, at time.Time) (HistoryEntry, error) {
	if !CanTransition(o.Status, t.To) {
		return HistoryEntry{}, &InvalidTransitionError{From: o.Status, To: t.To}
	}

	o.Status = t.To
	o.UpdatedAt = at
	switch t.To {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusProcessing:
		o.ProcessingAt = &at
	case StatusShipped:
		o.ShippedAt = &at
		if t.Tracking != nil {
			tr := *t.Tracking
			o.Tracking = &tr
		}
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
		o.CancelReason = t.CancelReason
	}

	notes := t.Notes
	if notes == "" && t.To == StatusCancelled {
		notes = t.CancelReason
	}
	entry := HistoryEntry{Status: t.To, At: at, Actor: t.Actor, Notes: notes}
	o.History.append(entry)
	return entry, nil
}

// decide records a corporate approval decision.
func (o *Order) decide(approved bool, actor, notes string, at time.Time) {
	c := *o.Corporate
	c.Approval = Approval{
		Status:    ApprovalRejected,
		DecidedBy: actor,
		DecidedAt: &at,
		Notes:     notes,
	}
	if approved {
		c.Approval.Status = ApprovalApproved
	}
	o.Corporate = &c
}
