package log

import "testing"

func TestMultiLoggerFansOut(t *testing.T) {
	a, b := &collector{}, &collector{}
	m := NewMultiLogger(a, nil, b)

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (nil skipped)", m.Len())
	}

	m.Log(Event{SessionID: "one"})
	m.Log(Event{SessionID: "two"})

	for name, c := range map[string]*collector{"a": a, "b": b} {
		if len(c.events) != 2 {
			t.Fatalf("%s got %d events, want 2", name, len(c.events))
		}
		if c.events[1].SessionID != "two" {
			t.Errorf("%s second event = %q, want two", name, c.events[1].SessionID)
		}
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	m := NewMultiLogger()
	m.Log(Event{})
}
