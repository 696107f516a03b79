package log

import (
	"io"
	"os"
	"sync"
)

// FileLogger writes protocol events to a file or stream in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	closer io.Closer
	w      io.Writer
	mu     sync.Mutex
	closed bool
	errs   int
}

// NewFileLogger creates a new FileLogger that writes to the specified path.
// If the file exists, new events are appended. The file is created with
// permissions 0644 if it doesn't exist.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l := NewStreamLogger(f)
	l.closer = f
	return l, nil
}

// NewStreamLogger creates a FileLogger writing to w. Close does not close w.
func NewStreamLogger(w io.Writer) *FileLogger {
	return &FileLogger{w: w}
}

// Log writes an event to the log file.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Logging must not disrupt the timers; count failures instead.
	data, err := EncodeEvent(event)
	if err != nil {
		l.errs++
		return
	}
	if _, err := l.w.Write(data); err != nil {
		l.errs++
	}
}

// Errors returns the number of events that could not be encoded or
// written.
func (l *FileLogger) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs
}

// Close closes the log file.
// It is safe to call Close multiple times.
// After Close is called, subsequent Log calls are silently ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Compile-time interface satisfaction check.
var _ Logger = (*FileLogger)(nil)
