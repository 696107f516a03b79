package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestStatsOutput(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 7",
		"TRANSPORT:",
		"WIRE:",
		"TIMER:",
		"STATE:",
		"Sessions: 2",
		"[abc12345] 6 events",
		"Timers: 2",
		"Requests: 1 set, 1 clear",
		"Fires: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") || strings.Contains(buf.String(), "Time Range") {
		t.Errorf("unexpected output for empty log:\n%s", buf.String())
	}
}
