package commands

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	SessionID string
	Role      string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
	TimerID   string
	TimerType string
}

// Filter builds the log filter described by the options.
func (opts FilterOptions) Filter() (log.Filter, error) {
	filter := log.Filter{
		SessionID: opts.SessionID,
		TimerType: opts.TimerType,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Role != "" {
		r, err := ParseRoleFlag(opts.Role)
		if err != nil {
			return filter, err
		}
		filter.Role = &r
	}

	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}

	if opts.TimerID != "" {
		id, err := strconv.ParseUint(opts.TimerID, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid timer-id: %w", err)
		}
		filter.TimerID = &id
	}

	return filter, nil
}

// RunFilter filters the log file and writes matching events to a new
// file. It reports the number of events written to out.
func RunFilter(path string, opts FilterOptions, out io.Writer) error {
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		logger.Log(event)
		count++
	}

	if n := logger.Errors(); n > 0 {
		return fmt.Errorf("failed to write %d events to %s", n, opts.Output)
	}
	fmt.Fprintf(out, "Filtered %d events to %s\n", count, opts.Output)
	return nil
}
