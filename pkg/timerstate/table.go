// Package timerstate holds the bookkeeping tables of a timer broker: one
// timer state table per timer type and the table of requests awaiting a
// response from the worker.
//
// The tables are plain data structures without locking. They are owned by
// a single broker which serializes access.
package timerstate

import (
	"github.com/google/uuid"
)

// Reserved is the key pre-populated in every table. It is the "no timer"
// id of host timer APIs and the notification request id, so generated
// keys never take it.
const Reserved uint64 = 0

// Token identifies one scheduling generation of a timer.
type Token = uuid.UUID

// NewToken mints a fresh generation token.
func NewToken() Token {
	return uuid.New()
}

// State is the lifecycle marker of a timer entry.
type State uint8

const (
	// StateActive means the timer is live.
	StateActive State = iota + 1

	// StatePendingClear means a clear was requested but not acknowledged.
	StatePendingClear
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StatePendingClear:
		return "PENDING_CLEAR"
	default:
		return "ABSENT"
	}
}

// Entry is the value stored for a timer id.
// Token is only meaningful while State is StateActive.
type Entry struct {
	State State
	Token Token
}

// IsActive reports whether the entry is active with the given token.
func (e Entry) IsActive(token Token) bool {
	return e.State == StateActive && e.Token == token
}

// Table maps timer ids of one timer type to their lifecycle marker.
type Table struct {
	entries map[uint64]Entry
}

// NewTable creates a table with the reserved id pre-populated as
// pending clear, so it can be neither cleared nor fired.
func NewTable() *Table {
	return &Table{
		entries: map[uint64]Entry{Reserved: {State: StatePendingClear}},
	}
}

// Has reports whether an entry exists for id.
func (t *Table) Has(id uint64) bool {
	_, ok := t.entries[id]
	return ok
}

// Len returns the number of entries, the reserved one included.
func (t *Table) Len() int {
	return len(t.entries)
}

// Get returns the entry for id.
func (t *Table) Get(id uint64) (Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// Activate marks id as active with token.
func (t *Table) Activate(id uint64, token Token) {
	t.entries[id] = Entry{State: StateActive, Token: token}
}

// MarkPendingClear overwrites the entry for id with the pending clear
// marker. It reports false, changing nothing, unless the entry is active.
func (t *Table) MarkPendingClear(id uint64) bool {
	e, ok := t.entries[id]
	if !ok || e.State != StateActive {
		return false
	}
	t.entries[id] = Entry{State: StatePendingClear}
	return true
}

// Delete removes the entry for id. The reserved entry cannot be removed.
func (t *Table) Delete(id uint64) {
	if id == Reserved {
		return
	}
	delete(t.entries, id)
}

// Snapshot returns a copy of all entries except the reserved one.
func (t *Table) Snapshot() map[uint64]Entry {
	out := make(map[uint64]Entry, len(t.entries)-1)
	for id, e := range t.entries {
		if id != Reserved {
			out[id] = e
		}
	}
	return out
}

// Reset drops every entry except the reserved one.
func (t *Table) Reset() {
	t.entries = map[uint64]Entry{Reserved: {State: StatePendingClear}}
}
