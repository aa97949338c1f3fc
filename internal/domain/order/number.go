package order

import (
	"fmt"
	"time"
)

// FormatNumber builds the human-readable order number: "ORD", the two-digit
// year, month and day of day, and the daily sequence padded to 4 digits,
// e.g. ORD2405170007.
func FormatNumber(day time.Time, seq int) string {
	return fmt.Sprintf("ORD%s%04d", day.Format("060102"), seq)
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
