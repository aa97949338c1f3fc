package order

import (
	"slices"
	"time"
)

// HistoryEntry is one recorded status change.
type HistoryEntry struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Notes  string    `json:"notes,omitempty"`
}

// History is the append-only audit trail of an order's status changes.
// Entries can be read but not edited or removed; only the lifecycle in this
// package appends to it.
type History struct {
	entries []HistoryEntry
}

// NewHistory rebuilds a history from stored entries, oldest first.
func NewHistory(entries ...HistoryEntry) History {
	return History{entries: slices.Clone(entries)}
}

// Entries returns a copy of all entries, oldest first.
func (h History) Entries() []HistoryEntry {
	return slices.Clone(h.entries)
}

// Len returns the number of entries.
func (h History) Len() int { return len(h.entries) }

// Last returns the newest entry.
func (h History) Last() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// append never writes into a backing array shared with another History
// value, so copies taken before the call are unaffected.
func (h *History) append(e HistoryEntry) {
	h.entries = append(slices.Clip(h.entries), e)
}
