// Package config loads the YAML configuration shared by the timers
// commands. Command-line flags override file values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/worker-timers-go/pkg/transport"
	"github.com/mash-protocol/worker-timers-go/pkg/workertimers"
)

// Config is the configuration file layout.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// ProtocolLog is the path of a CBOR protocol capture file. Empty
	// disables capture.
	ProtocolLog string `yaml:"protocol_log"`

	// MaxMessageSize bounds frames in both directions.
	MaxMessageSize uint32 `yaml:"max_message_size"`

	// MinDelay raises shorter timer delays.
	MinDelay time.Duration `yaml:"min_delay"`

	// CloseTimeout bounds shutdown.
	CloseTimeout time.Duration `yaml:"close_timeout"`

	Worker WorkerConfig `yaml:"worker"`
}

// WorkerConfig selects the worker the broker talks to.
type WorkerConfig struct {
	// Path of the worker executable. Empty runs the worker in-process.
	Path string `yaml:"path"`

	// Args passed to the worker executable.
	Args []string `yaml:"args"`

	// NotifyFires makes the worker report fires as call notifications.
	NotifyFires bool `yaml:"notify_fires"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		MaxMessageSize: transport.DefaultMaxMessageSize,
		CloseTimeout:   5 * time.Second,
	}
}

// LoadError describes a configuration file that could not be loaded.
type LoadError struct {
	// File is the path of the file (empty for in-memory data).
	File string

	// Line is the line number of the error (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			b.WriteString(":" + strconv.Itoa(e.Line))
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse decodes YAML data over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		le := &LoadError{Message: "failed to parse YAML", Cause: err, Line: lineOf(err.Error())}
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 {
			le.Line = lineOf(te.Errors[0])
		}
		return nil, le
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &LoadError{Message: "invalid log_level", Cause: err}
	}
	if c.MaxMessageSize < 64 {
		return &LoadError{Message: fmt.Sprintf("max_message_size %d is below 64 bytes", c.MaxMessageSize)}
	}
	if c.MinDelay < 0 {
		return &LoadError{Message: "min_delay must not be negative"}
	}
	if c.CloseTimeout <= 0 {
		return &LoadError{Message: "close_timeout must be positive"}
	}
	if c.Worker.Path == "" && len(c.Worker.Args) > 0 {
		return &LoadError{Message: "worker.args given without worker.path"}
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	lvl, _ := ParseLevel(c.LogLevel)
	return lvl
}

// HandleConfig returns the settings for a workertimers handle.
func (c *Config) HandleConfig() workertimers.Config {
	return workertimers.Config{
		MinDelay:       c.MinDelay,
		MaxMessageSize: c.MaxMessageSize,
		CloseTimeout:   c.CloseTimeout,
		NotifyFires:    c.Worker.NotifyFires,
	}
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

// lineOf extracts the line number from a yaml.v3 error message of the
// form "[yaml: ]line N: ...".
func lineOf(msg string) int {
	msg = strings.TrimPrefix(msg, "yaml: ")
	rest, ok := strings.CutPrefix(msg, "line ")
	if !ok {
		return 0
	}
	n, _, _ := strings.Cut(rest, ":")
	line, err := strconv.Atoi(n)
	if err != nil {
		return 0
	}
	return line
}
