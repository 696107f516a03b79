package broker

import (
	"errors"
	"fmt"
)

// Broker errors.
var (
	// ErrUndefinedState reports a message that references a timer or
	// request the broker has no record of. The two sides have
	// desynchronized.
	ErrUndefinedState = errors.New("timer in undefined state")

	// ErrClosed is returned by Err after Close.
	ErrClosed = errors.New("broker closed")

	// ErrNoSender is returned by New when Config.Sender is nil.
	ErrNoSender = errors.New("no sender configured")
)

// RemoteError is an error reported by the worker for one of our requests.
type RemoteError struct {
	RequestID uint64
	Message   string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker error for request %d: %s", e.RequestID, e.Message)
}

func undefinedState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndefinedState, fmt.Sprintf(format, args...))
}
