package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBasic(t *testing.T) {
	data := `
id: SC-TEST-001
name: Basic
description: A simple scenario
tags: [smoke]
steps:
  - action: set_timeout
    params:
      timer: t1
      delay: 10ms
    expect:
      sent: 1
`
	sc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if sc.ID != "SC-TEST-001" || sc.Name != "Basic" {
		t.Errorf("ID, Name = %q, %q", sc.ID, sc.Name)
	}
	if len(sc.Steps) != 1 {
		t.Fatalf("len(Steps) = %d, want 1", len(sc.Steps))
	}
	step := sc.Steps[0]
	if step.Action != "set_timeout" {
		t.Errorf("Action = %q, want set_timeout", step.Action)
	}
	if step.Params["delay"] != "10ms" {
		t.Errorf("Params[delay] = %v, want 10ms", step.Params["delay"])
	}
	if step.Expect["sent"] != 1 {
		t.Errorf("Expect[sent] = %v, want 1", step.Expect["sent"])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		contains string
	}{
		{"bad yaml", "id: [", "failed to parse YAML"},
		{"missing id", "steps:\n  - action: check\n", "ID is required"},
		{"no steps", "id: SC-X\n", "at least one step"},
		{"unknown action", "id: SC-X\nsteps:\n  - action: teleport\n", `unknown action "teleport"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Parse() error = %v, want *LoadError", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestLoadSetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("name: no id\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Load() error = %v, want *LoadError", err)
	}
	if le.File != path {
		t.Errorf("File = %q, want %q", le.File, path)
	}
}

func TestLoadDirectorySkipsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.yaml":    "id: A\nsteps:\n  - action: check\n",
		"b.yml":     "id: B\nsteps:\n  - action: check\n",
		"notes.txt": "not a scenario",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o700); err != nil {
		t.Fatal(err)
	}

	scenarios, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory() error = %v", err)
	}
	if len(scenarios) != 2 {
		t.Errorf("loaded %d scenarios, want 2", len(scenarios))
	}
}

func TestLoadDirectoryMissing(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadDirectory() error = %v, want ErrNotExist", err)
	}
}
