package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	want := Default()
	if cfg.LogLevel != want.LogLevel || cfg.MaxMessageSize != want.MaxMessageSize || cfg.CloseTimeout != want.CloseTimeout {
		t.Errorf("Parse(nil) = %+v, want defaults %+v", cfg, want)
	}
}

func TestParseFull(t *testing.T) {
	data := `
log_level: debug
protocol_log: /tmp/session.tlog
max_message_size: 4096
min_delay: 4ms
close_timeout: 2s
worker:
  path: /usr/local/bin/timers-worker
  args: ["-notify"]
  notify_fires: true
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want DEBUG", cfg.Level())
	}
	if cfg.ProtocolLog != "/tmp/session.tlog" {
		t.Errorf("ProtocolLog = %q", cfg.ProtocolLog)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d, want 4096", cfg.MaxMessageSize)
	}
	if cfg.MinDelay != 4*time.Millisecond {
		t.Errorf("MinDelay = %v, want 4ms", cfg.MinDelay)
	}
	if cfg.CloseTimeout != 2*time.Second {
		t.Errorf("CloseTimeout = %v, want 2s", cfg.CloseTimeout)
	}
	if cfg.Worker.Path != "/usr/local/bin/timers-worker" || len(cfg.Worker.Args) != 1 || !cfg.Worker.NotifyFires {
		t.Errorf("Worker = %+v", cfg.Worker)
	}

	hc := cfg.HandleConfig()
	if hc.MinDelay != cfg.MinDelay || hc.MaxMessageSize != 4096 || !hc.NotifyFires {
		t.Errorf("HandleConfig() = %+v", hc)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		contains string
		line     int
	}{
		{"unknown key", "log_level: info\nworkers: {}\n", "field workers not found", 2},
		{"bad level", "log_level: loud\n", "invalid log_level", 0},
		{"tiny frames", "max_message_size: 8\n", "below 64 bytes", 0},
		{"negative delay", "min_delay: -1ms\n", "min_delay", 0},
		{"zero close timeout", "close_timeout: 0s\n", "close_timeout", 0},
		{"args without path", "worker:\n  args: [a]\n", "worker.args", 0},
		{"bad yaml", "log_level: [\n", "failed to parse YAML", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("error %T is not *LoadError", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
			if tt.line > 0 && le.Line != tt.line {
				t.Errorf("Line = %d, want %d", le.Line, tt.line)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timers.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("Level() = %v, want WARN", cfg.Level())
	}
}

func TestLoadErrorsNameFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("log_level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{bad, filepath.Join(dir, "missing.yaml")} {
		_, err := Load(path)
		var le *LoadError
		if !errors.As(err, &le) {
			t.Fatalf("Load(%s) error = %v, want *LoadError", path, err)
		}
		if le.File != path {
			t.Errorf("File = %q, want %q", le.File, path)
		}
		if !strings.HasPrefix(err.Error(), path+": ") {
			t.Errorf("Error() = %q, want file prefix", err)
		}
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("errors.Is(err, os.ErrNotExist) = false for %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
