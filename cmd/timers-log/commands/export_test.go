package commands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// createTestLogFile writes events to a temporary log file.
func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

var testTime = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

// sessionEvents is a short broker session: a timeout set, fired and an
// interval cleared.
func sessionEvents() []log.Event {
	delay := 50 * time.Millisecond
	return []log.Event{
		{
			Timestamp: testTime, SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, RequestID: 1, Method: "set", TimerID: 1, TimerType: "timeout", Delay: &delay},
		},
		{
			Timestamp: testTime.Add(time.Millisecond), SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionOut, Layer: log.LayerTimer, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{TimerID: 1, TimerType: "timeout", OldState: "ABSENT", NewState: "ACTIVE", Reason: "set"},
		},
		{
			Timestamp: testTime.Add(50 * time.Millisecond), SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, RequestID: 1, TimerID: 1, TimerType: "timeout",
				Result: wire.SetResult{TimerID: 1, TimerType: wire.TimerTypeTimeout}},
		},
		{
			Timestamp: testTime.Add(60 * time.Millisecond), SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionOut, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, RequestID: 2, Method: "clear", TimerID: 4, TimerType: "interval"},
		},
		{
			Timestamp: testTime.Add(70 * time.Millisecond), SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionIn, Layer: log.LayerWire, Category: log.CategoryMessage,
			Message: &log.MessageEvent{Type: log.MessageTypeResponse, RequestID: 2, Result: true},
		},
		{
			Timestamp: testTime.Add(80 * time.Millisecond), SessionID: "def67890-worker", LocalRole: log.RoleWorker,
			Direction: log.DirectionIn, Layer: log.LayerTransport, Category: log.CategoryMessage,
			Frame: &log.FrameEvent{Size: 40, Data: []byte{0xa3, 0x62}},
		},
		{
			Timestamp: testTime.Add(90 * time.Millisecond), SessionID: "abc12345-session", LocalRole: log.RoleBroker,
			Direction: log.DirectionIn, Layer: log.LayerTimer, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTimer, Message: "timer in undefined state", Context: "fatal"},
		},
	}
}

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(sessionEvents()) {
		t.Fatalf("expected %d lines, got %d", len(sessionEvents()), len(lines))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not JSON: %v", err)
	}
	if first["SessionID"] != "abc12345-session" {
		t.Errorf("SessionID = %v", first["SessionID"])
	}

	// The set result is a CBOR map and must still encode as JSON.
	if !strings.Contains(lines[2], `"timerType":"timeout"`) {
		t.Errorf("set result missing from line 3: %s", lines[2])
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != len(sessionEvents())+1 {
		t.Fatalf("expected %d rows, got %d", len(sessionEvents())+1, len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][10] != "timer_id" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	set := rows[1]
	want := []string{"2026-01-28T10:15:32.123456Z", "abc12345-session", "BROKER", "OUT", "WIRE", "MESSAGE", "REQUEST", "1", "set", "timeout", "1"}
	for i := range want {
		if set[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, set[i], want[i])
		}
	}

	if state := rows[2]; state[6] != "state" || state[9] != "timeout" {
		t.Errorf("state row = %v", state)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	err := RunExport(path, "xml", "")
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestExportMissingFile(t *testing.T) {
	err := RunExport(filepath.Join(t.TempDir(), "missing.tlog"), "jsonl", "")
	if err == nil {
		t.Error("expected error for missing file")
	}
}
