package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// running returns the number of armed timers.
func running(m *Manager) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func TestManagerTimerTypesAreSeparate(t *testing.T) {
	m := NewManager(nil)
	defer m.CancelAll()

	m.SetTimer(wire.TimerRef{TimerID: 1, TimerType: wire.TimerTypeInterval}, 4, time.Hour)
	m.SetTimer(wire.TimerRef{TimerID: 1, TimerType: wire.TimerTypeTimeout}, 5, time.Hour)

	if n := running(m); n != 2 {
		t.Errorf("running = %d, want 2", n)
	}
	if !m.CancelTimer(wire.TimerRef{TimerID: 1, TimerType: wire.TimerTypeTimeout}) {
		t.Error("CancelTimer(timeout 1) = false, want true")
	}
	if n := running(m); n != 1 {
		t.Errorf("running = %d after cancel, want 1", n)
	}
}

func TestManagerCancel(t *testing.T) {
	m := NewManager(func(Timer) { t.Error("cancelled timer fired") })

	ref := wire.TimerRef{TimerID: 2, TimerType: wire.TimerTypeTimeout}
	m.SetTimer(ref, 1, 10*time.Millisecond)

	if !m.CancelTimer(ref) {
		t.Error("CancelTimer() = false, want true")
	}
	if m.CancelTimer(ref) {
		t.Error("second CancelTimer() = true, want false")
	}
	if n := running(m); n != 0 {
		t.Errorf("running = %d, want 0", n)
	}
	time.Sleep(30 * time.Millisecond)
}

func TestManagerCancelAll(t *testing.T) {
	m := NewManager(func(Timer) { t.Error("stopped timer fired") })

	m.SetTimer(wire.TimerRef{TimerID: 1, TimerType: wire.TimerTypeTimeout}, 1, 10*time.Millisecond)
	m.SetTimer(wire.TimerRef{TimerID: 2, TimerType: wire.TimerTypeInterval}, 2, 10*time.Millisecond)

	if n := m.CancelAll(); n != 2 {
		t.Errorf("CancelAll() = %d, want 2", n)
	}
	if n := m.CancelAll(); n != 0 {
		t.Errorf("second CancelAll() = %d, want 0", n)
	}
	time.Sleep(30 * time.Millisecond)
}

func TestManagerExpiry(t *testing.T) {
	var (
		mu    sync.Mutex
		fired []Timer
	)
	done := make(chan struct{})
	m := NewManager(func(tm Timer) {
		mu.Lock()
		fired = append(fired, tm)
		mu.Unlock()
		close(done)
	})

	ref := wire.TimerRef{TimerID: 3, TimerType: wire.TimerTypeTimeout}
	m.SetTimer(ref, 1, time.Hour)
	m.SetTimer(ref, 2, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not expire")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) != 1 || fired[0].RequestID != 2 {
		t.Errorf("fired = %+v, want only request 2", fired)
	}
	if n := running(m); n != 0 {
		t.Errorf("running = %d after expiry, want 0", n)
	}
}

func TestManagerCancelWaitsForExpiry(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m := NewManager(func(Timer) {
		close(entered)
		<-release
	})

	ref := wire.TimerRef{TimerID: 5, TimerType: wire.TimerTypeTimeout}
	m.SetTimer(ref, 1, time.Millisecond)
	<-entered

	cancelled := make(chan bool, 1)
	go func() { cancelled <- m.CancelTimer(ref) }()

	select {
	case <-cancelled:
		t.Fatal("CancelTimer() returned while the expiry callback was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if <-cancelled {
		t.Error("CancelTimer() = true for a fired timer, want false")
	}
}

func TestManagerIgnoresReplacedExpiry(t *testing.T) {
	m := NewManager(func(Timer) { t.Error("replaced timer fired") })
	defer m.CancelAll()

	ref := wire.TimerRef{TimerID: 4, TimerType: wire.TimerTypeTimeout}
	m.SetTimer(ref, 1, time.Hour)
	stale := &Timer{Ref: ref}

	m.expireTimer(timerKey{timerType: ref.TimerType, timerID: ref.TimerID}, stale)

	if n := running(m); n != 1 {
		t.Errorf("running = %d, want 1", n)
	}
}
