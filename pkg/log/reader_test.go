package log

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func writeEvents(t *testing.T, events ...Event) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	l := NewStreamLogger(&buf)
	for _, e := range events {
		l.Log(e)
	}
	return &buf
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, e)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{Timestamp: base, SessionID: "a", LocalRole: RoleBroker, Direction: DirectionOut, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, RequestID: 1, Method: "set", TimerID: 1, TimerType: "timeout"}},
		{Timestamp: base.Add(time.Second), SessionID: "a", LocalRole: RoleBroker, Layer: LayerTimer, Category: CategoryState,
			StateChange: &StateChangeEvent{TimerID: 1, TimerType: "timeout", OldState: "ABSENT", NewState: "ACTIVE"}},
		{Timestamp: base.Add(2 * time.Second), SessionID: "b", LocalRole: RoleWorker, Direction: DirectionIn, Layer: LayerWire, Category: CategoryMessage,
			Message: &MessageEvent{Type: MessageTypeRequest, RequestID: 2, Method: "set", TimerID: 2, TimerType: "interval"}},
		{Timestamp: base.Add(3 * time.Second), SessionID: "b", LocalRole: RoleWorker, Layer: LayerTransport, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerTransport, Message: "eof"}},
	}

	role := RoleWorker
	dirIn := DirectionIn
	layerTimer := LayerTimer
	catErr := CategoryError
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)
	timer1 := uint64(1)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 4},
		{"session", Filter{SessionID: "a"}, 2},
		{"role", Filter{Role: &role}, 2},
		{"direction", Filter{Direction: &dirIn}, 1},
		{"layer", Filter{Layer: &layerTimer}, 1},
		{"category", Filter{Category: &catErr}, 1},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"timer id", Filter{TimerID: &timer1}, 2},
		{"timer type", Filter{TimerType: "interval"}, 1},
		{"timer id and type", Filter{TimerID: &timer1, TimerType: "interval"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := writeEvents(t, events...)
			got := readAll(t, NewStreamReader(buf, tt.filter))
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/file.tlog"); err == nil {
		t.Error("NewReader() on missing file should fail")
	}
}

func TestReaderCorruptData(t *testing.T) {
	buf := writeEvents(t, Event{SessionID: "ok"})
	buf.Write([]byte{0xff, 0xfe})

	r := NewStreamReader(buf, Filter{})
	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("Next() on corrupt data = %v, want decode error", err)
	}
}
