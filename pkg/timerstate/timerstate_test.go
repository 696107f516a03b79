package timerstate

import (
	"testing"

	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

func TestTableReservedEntry(t *testing.T) {
	tbl := NewTable()

	if !tbl.Has(Reserved) {
		t.Fatal("reserved id should be pre-populated")
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tbl.Len())
	}
	if tbl.MarkPendingClear(Reserved) {
		t.Error("MarkPendingClear(Reserved) = true, want false")
	}

	tbl.Delete(Reserved)
	if !tbl.Has(Reserved) {
		t.Error("Delete must not remove the reserved entry")
	}
	if len(tbl.Snapshot()) != 0 {
		t.Errorf("Snapshot() = %v, want empty", tbl.Snapshot())
	}
}

func TestTableLifecycle(t *testing.T) {
	tbl := NewTable()
	token := NewToken()

	tbl.Activate(5, token)

	e, ok := tbl.Get(5)
	if !ok {
		t.Fatal("Get(5) missing after Activate")
	}
	if !e.IsActive(token) {
		t.Errorf("entry = %+v, want active with token", e)
	}
	if e.IsActive(NewToken()) {
		t.Error("IsActive() with a different token = true, want false")
	}

	if !tbl.MarkPendingClear(5) {
		t.Fatal("MarkPendingClear(5) = false, want true")
	}
	e, _ = tbl.Get(5)
	if e.State != StatePendingClear {
		t.Errorf("State = %s, want PENDING_CLEAR", e.State)
	}
	if e.IsActive(token) {
		t.Error("pending clear entry must not be active")
	}
	if tbl.MarkPendingClear(5) {
		t.Error("second MarkPendingClear(5) = true, want false")
	}

	tbl.Delete(5)
	if tbl.Has(5) {
		t.Error("Has(5) after Delete = true")
	}
	if tbl.MarkPendingClear(5) {
		t.Error("MarkPendingClear on absent entry = true, want false")
	}
}

func TestTableReset(t *testing.T) {
	tbl := NewTable()
	tbl.Activate(1, NewToken())
	tbl.Activate(2, NewToken())

	tbl.Reset()

	if tbl.Len() != 1 || !tbl.Has(Reserved) {
		t.Errorf("after Reset Len() = %d, want only the reserved entry", tbl.Len())
	}
}

func TestTokensAreUnique(t *testing.T) {
	seen := make(map[Token]struct{})
	for i := 0; i < 100; i++ {
		tok := NewToken()
		if _, dup := seen[tok]; dup {
			t.Fatalf("NewToken() returned duplicate %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateActive, "ACTIVE"},
		{StatePendingClear, "PENDING_CLEAR"},
		{State(0), "ABSENT"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestRequestsTakeOnce(t *testing.T) {
	r := NewRequests()
	r.Add(3, &Request{Kind: KindClear, TimerID: 9, TimerType: wire.TimerTypeTimeout})

	if r.Pending() != 1 || r.PendingClears() != 1 {
		t.Errorf("Pending() = %d, PendingClears() = %d, want 1, 1", r.Pending(), r.PendingClears())
	}

	req, ok := r.Take(3)
	if !ok || req.TimerID != 9 {
		t.Fatalf("Take(3) = %+v, %v", req, ok)
	}
	if _, ok := r.Take(3); ok {
		t.Error("second Take(3) succeeded, want false")
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestRequestsReservedID(t *testing.T) {
	r := NewRequests()
	if !r.Has(Reserved) {
		t.Error("reserved request id should be pre-populated")
	}
	if _, ok := r.Take(Reserved); ok {
		t.Error("Take(Reserved) succeeded, want false")
	}
}

func TestRequestsOutstandingSet(t *testing.T) {
	r := NewRequests()
	r.Add(4, &Request{Kind: KindSet, TimerID: 1, TimerType: wire.TimerTypeInterval})

	id, ok := r.OutstandingSet(wire.TimerTypeInterval, 1)
	if !ok || id != 4 {
		t.Fatalf("OutstandingSet() = %d, %v, want 4, true", id, ok)
	}
	if _, ok := r.OutstandingSet(wire.TimerTypeTimeout, 1); ok {
		t.Error("timer types must not share a namespace")
	}

	r.Take(4)
	if _, ok := r.OutstandingSet(wire.TimerTypeInterval, 1); ok {
		t.Error("OutstandingSet() after Take should be gone")
	}
}

func TestRequestsDropSet(t *testing.T) {
	r := NewRequests()
	r.Add(4, &Request{Kind: KindSet, TimerID: 1, TimerType: wire.TimerTypeInterval})
	r.Add(5, &Request{Kind: KindClear, TimerID: 1, TimerType: wire.TimerTypeInterval})

	id, ok := r.DropSet(wire.TimerTypeInterval, 1)
	if !ok || id != 4 {
		t.Fatalf("DropSet() = %d, %v, want 4, true", id, ok)
	}
	if r.Has(4) {
		t.Error("dropped set request still pending")
	}
	if !r.Has(5) {
		t.Error("DropSet must not touch clear requests")
	}
	if _, ok := r.DropSet(wire.TimerTypeInterval, 1); ok {
		t.Error("second DropSet succeeded, want false")
	}
}
