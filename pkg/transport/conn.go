package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
)

// ConnectionState is the lifecycle state of a Conn.
type ConnectionState int32

const (
	// StateConnected indicates an open connection.
	StateConnected ConnectionState = iota

	// StateClosing indicates the outbox is draining before close.
	StateClosing

	// StateDisconnected indicates the connection is closed.
	StateDisconnected
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyServing = errors.New("already serving")
	ErrCloseTimeout   = errors.New("close timeout")
)

// ConnConfig configures a Conn.
type ConnConfig struct {
	// MaxMessageSize is the maximum message size (default: 64KB).
	MaxMessageSize uint32

	// CloseTimeout bounds how long Close waits for queued frames (default: 5s).
	CloseTimeout time.Duration

	// SessionID and Role tag protocol capture events.
	SessionID string
	Role      log.Role

	// ProtocolLogger receives frame events. Nil disables capture.
	ProtocolLogger log.Logger

	// Logger receives operational logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConnConfig returns the default connection configuration.
func DefaultConnConfig() ConnConfig {
	return ConnConfig{
		MaxMessageSize: DefaultMaxMessageSize,
		CloseTimeout:   5 * time.Second,
	}
}

// Handler receives inbound messages. Returning an error stops the read
// loop and closes the connection.
type Handler interface {
	OnMessage(msg []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(msg []byte) error

// OnMessage calls f(msg).
func (f HandlerFunc) OnMessage(msg []byte) error {
	return f(msg)
}

// Conn is a framed, bidirectional message connection. Inbound frames are
// delivered sequentially to a Handler from a single read loop; outbound
// frames go through an Outbox so Send never blocks.
type Conn struct {
	config ConnConfig
	logger *slog.Logger
	rwc    io.ReadWriteCloser
	framer *Framer
	outbox *Outbox

	state     atomic.Int32
	serving   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// NewConn wraps rwc. Call Serve to start reading.
func NewConn(rwc io.ReadWriteCloser, config ConnConfig) *Conn {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.CloseTimeout == 0 {
		config.CloseTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		config: config,
		logger: logger.With("session_id", config.SessionID, "role", config.Role.String()),
		rwc:    rwc,
		framer: NewFramerWithMaxSize(rwc, config.MaxMessageSize),
		done:   make(chan struct{}),
	}
	if config.ProtocolLogger != nil {
		c.framer.SetLogger(config.ProtocolLogger, config.SessionID, config.Role)
	}
	c.outbox = NewOutbox(c.framer, func(err error) {
		c.fail(fmt.Errorf("write error: %w", err))
	})
	c.state.Store(int32(StateConnected))
	return c
}

// State returns the current connection state.
func (c *Conn) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// SessionID returns the session id the connection was configured with.
func (c *Conn) SessionID() string {
	return c.config.SessionID
}

// Serve starts the read loop delivering frames to h. It may be called
// once.
func (c *Conn) Serve(h Handler) error {
	if !c.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	go c.readLoop(h)
	return nil
}

// Send queues a message for the peer. It never blocks on I/O.
func (c *Conn) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	return c.outbox.Enqueue(data)
}

// Done is closed when the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the connection. It is nil after a
// clean close or peer EOF.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close drains queued frames, waiting at most CloseTimeout, then closes
// the underlying stream.
func (c *Conn) Close() error {
	var closeErr error

	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.outbox.Close()

		select {
		case <-c.outbox.Done():
		case <-time.After(c.config.CloseTimeout):
			closeErr = ErrCloseTimeout
		}

		c.shutdown()
	})

	return closeErr
}

// fail records err and closes the connection without draining.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		c.logger.Debug("connection failed", "error", err)
		c.outbox.Close()
		c.shutdown()
	})
}

func (c *Conn) shutdown() {
	c.rwc.Close()
	c.state.Store(int32(StateDisconnected))
	close(c.done)
}

func (c *Conn) readLoop(h Handler) {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.State() != StateConnected || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.logger.Debug("read loop stopped", "reason", err)
				c.closeOnce.Do(func() {
					c.outbox.Close()
					c.shutdown()
				})
				return
			}
			c.fail(fmt.Errorf("read error: %w", err))
			return
		}

		if err := h.OnMessage(data); err != nil {
			c.fail(err)
			return
		}
	}
}

// Duplex joins a reader and a writer, such as a child process's stdout
// and stdin, into one stream. Close closes both halves that implement
// io.Closer.
func Duplex(r io.Reader, w io.Writer) io.ReadWriteCloser {
	return &duplex{r: r, w: w}
}

type duplex struct {
	r io.Reader
	w io.Writer
}

func (d *duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.w.Write(p) }

func (d *duplex) Close() error {
	var errs []error
	if c, ok := d.w.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := d.r.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Pipe returns two connected in-memory connections. Frames sent on one
// are delivered to the handler served on the other.
func Pipe(a, b ConnConfig) (*Conn, *Conn) {
	ca, cb := net.Pipe()
	return NewConn(ca, a), NewConn(cb, b)
}
