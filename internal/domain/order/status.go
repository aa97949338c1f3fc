package order

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/giftkart/internal/domain/auth"
)

// Get returns an order visible to p: its owner, an admin or an approver.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.IsAdmin() && !p.CanApprove() {
		// Do not reveal that the order exists.
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns the caller's orders, newest first.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// StatusUpdate is an administrative status change.
type StatusUpdate struct {
	Status   Status
	Notes    string
	Tracking *Tracking
}

// UpdateStatus moves an order along the lifecycle on behalf of an admin.
// Orders awaiting corporate approval can only be confirmed through Approve.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, id string, u StatusUpdate) (*Order, error) {
	if !p.IsAdmin() {
		return nil, ErrUnauthorized
	}
	t := Transition{
		To:       u.Status,
		Actor:    p.UserID,
		Notes:    u.Notes,
		Tracking: u.Tracking,
	}
	if u.Status == StatusCancelled {
		t.CancelReason = u.Notes
	}
	return s.transition(ctx, id, p, t)
}

// ownerCancellable lists the statuses from which a customer may cancel
// their own order. Later stages need an admin.
var ownerCancellable = []Status{StatusPending, StatusPendingApproval, StatusConfirmed}

// Cancel cancels an order and returns its stock. The owner may cancel
// before processing starts; admins may cancel any non-terminal order that
// has not shipped.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id, reason string) (*Order, error) {
	return s.transition(ctx, id, p, Transition{
		To:           StatusCancelled,
		Actor:        p.UserID,
		CancelReason: reason,
	})
}

// Approve records a corporate approval decision. Approval confirms the
// order; rejection cancels it and returns its stock.
func (s *Service) Approve(ctx context.Context, p auth.Principal, id string, approved bool, notes string) (*Order, error) {
	if !p.CanApprove() {
		return nil, ErrUnauthorized
	}
	t := Transition{To: StatusConfirmed, Actor: p.UserID, Notes: notes, approval: true}
	if !approved {
		t.To = StatusCancelled
		t.CancelReason = "rejected by approver"
		if notes != "" {
			t.CancelReason = notes
		}
	}
	return s.transition(ctx, id, p, t)
}

// transition locks the order, checks the caller may perform t, applies it
// and, for cancellations, restores stock, all in one transaction. Because
// the order row is locked and its status re-read inside the transaction,
// concurrent cancellations restore stock at most once.
func (s *Service) transition(ctx context.Context, id string, p auth.Principal, t Transition) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Transition", trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.status.to", string(t.To)),
	))
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
		}
		span.End()
	}()

	var (
		updated *Order
		prev    Status
	)
	if err := s.store.Do(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		prev = o.Status

		if err := authorize(p, o, t); err != nil {
			return err
		}

		now := s.now()
		if t.approval {
			o.decide(t.To == StatusConfirmed, p.UserID, t.Notes, now)
		}
		entry, err := o.apply(t, now)
		if err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, o, entry); err != nil {
			return errors.Wrap(err, "save transition")
		}

		if t.To == StatusCancelled {
			qty := o.Quantities()
			for _, pid := range sortedKeys(qty) {
				if err := tx.IncrementStock(ctx, pid, qty[pid]); err != nil {
					return errors.Wrapf(err, "restore stock for %s", pid)
				}
			}
		}
		updated = o
		return nil
	}); err != nil {
		return nil, err
	}

	s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(prev)),
		attribute.String("to", string(updated.Status)),
	))
	if updated.Status == StatusCancelled {
		units := 0
		for _, it := range updated.Items {
			units += it.Quantity
		}
		s.metrics.restored.Add(ctx, int64(units))
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", updated.ID),
		zap.String("from", string(prev)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", t.Actor),
	)
	s.notifier.Notify(ctx, newEvent(EventStatusChanged, updated, prev, t.Actor))
	return updated, nil
}

// authorize runs after the order is locked so that it sees the current
// status. Lifecycle violations are reported before permission problems.
func authorize(p auth.Principal, o *Order, t Transition) error {
	owner := o.UserID == p.UserID
	if !owner && !p.IsAdmin() && !p.CanApprove() {
		return ErrNotFound
	}

	if t.approval {
		if o.Status != StatusPendingApproval {
			return &InvalidTransitionError{From: o.Status, To: t.To, Reason: "order is not awaiting approval"}
		}
		if !p.CanApprove() {
			return ErrUnauthorized
		}
		return nil
	}

	if !CanTransition(o.Status, t.To) {
		return &InvalidTransitionError{From: o.Status, To: t.To}
	}
	if o.Status == StatusPendingApproval && t.To == StatusConfirmed {
		return &InvalidTransitionError{From: o.Status, To: t.To, Reason: "corporate approval required"}
	}

	switch {
	case p.IsAdmin():
		return nil
	case owner && t.To == StatusCancelled && slices.Contains(ownerCancellable, o.Status):
		return nil
	default:
		return ErrUnauthorized
	}
}
