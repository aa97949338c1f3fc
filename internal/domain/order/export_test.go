package order

import "time"

// SetClock replaces the service clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// FailureReason exposes the checkout failure metric label.
func FailureReason(err error) string { return failureReason(err) }
