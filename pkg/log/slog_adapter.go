package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger
// at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("role", event.LocalRole.String()),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated || len(event.Frame.Data) > MaxFrameData),
		)
	case event.Message != nil:
		attrs = append(attrs,
			slog.Uint64("request_id", event.Message.RequestID),
			slog.String("msg_type", event.Message.Type.String()),
		)
		if event.Message.Method != "" {
			attrs = append(attrs, slog.String("method", event.Message.Method))
		}
		if event.Message.TimerType != "" {
			attrs = append(attrs,
				slog.Uint64("timer_id", event.Message.TimerID),
				slog.String("timer_type", event.Message.TimerType),
			)
		}
		if event.Message.Delay != nil {
			attrs = append(attrs, slog.Duration("delay", *event.Message.Delay))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.Uint64("timer_id", event.StateChange.TimerID),
			slog.String("timer_type", event.StateChange.TimerType),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), a.level, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
