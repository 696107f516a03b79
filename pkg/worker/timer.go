package worker

import (
	"sync"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// timerKey uniquely identifies a timer.
type timerKey struct {
	timerType wire.TimerType
	timerID   uint64
}

// Timer is a running timer.
type Timer struct {
	// Ref names the timer.
	Ref wire.TimerRef

	// RequestID is the id of the set request that started the timer, or
	// NotificationID if the broker asked for no response.
	RequestID uint64

	timer *time.Timer
}

// Manager runs the timers of one broker session.
type Manager struct {
	mu sync.Mutex

	timers map[timerKey]*Timer

	onExpiry func(t Timer)
}

// NewManager creates a timer manager calling onExpiry for every timer
// that elapses. onExpiry runs under the manager lock, so a CancelTimer
// either stops the timer or returns after onExpiry did; it must not
// block or call back into the Manager.
func NewManager(onExpiry func(t Timer)) *Manager {
	return &Manager{
		timers:   make(map[timerKey]*Timer),
		onExpiry: onExpiry,
	}
}

// SetTimer arms a timer, replacing any running timer with the same
// reference.
func (m *Manager) SetTimer(ref wire.TimerRef, requestID uint64, delay time.Duration) {
	key := timerKey{timerType: ref.TimerType, timerID: ref.TimerID}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.timers[key]; exists {
		existing.timer.Stop()
	}

	t := &Timer{Ref: ref, RequestID: requestID}
	t.timer = time.AfterFunc(delay, func() {
		m.expireTimer(key, t)
	})
	m.timers[key] = t
}

// CancelTimer stops a timer without triggering the expiry callback. It
// reports whether the timer was running.
func (m *Manager) CancelTimer(ref wire.TimerRef) bool {
	key := timerKey{timerType: ref.TimerType, timerID: ref.TimerID}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, exists := m.timers[key]
	if !exists {
		return false
	}
	t.timer.Stop()
	delete(m.timers, key)
	return true
}

// CancelAll stops every timer and returns how many were running.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.timers)
	for key, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, key)
	}
	return n
}

// expireTimer handles expiry of t. A timer replaced or cancelled after
// its AfterFunc started is ignored.
func (m *Manager) expireTimer(key timerKey, t *Timer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timers[key] != t {
		return
	}
	delete(m.timers, key)
	if m.onExpiry != nil {
		m.onExpiry(*t)
	}
}
