package workertimers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/broker"
	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/transport"
)

// ErrDisconnected is reported when the connection to the worker ends
// while the broker is still running.
var ErrDisconnected = errors.New("worker disconnected")

// Config configures a Handle.
type Config struct {
	// MinDelay raises shorter delays. Defaults to broker.MinDelay.
	MinDelay time.Duration

	// MaxMessageSize bounds frames in both directions.
	// Defaults to transport.DefaultMaxMessageSize.
	MaxMessageSize uint32

	// CloseTimeout bounds how long Close waits for queued requests and,
	// for Load, for the worker process to exit. Defaults to 5s.
	CloseTimeout time.Duration

	// NotifyFires makes an in-process worker report fires as call
	// notifications. Ignored by Load and Wrap.
	NotifyFires bool

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives frame, message and state change events.
	ProtocolLogger log.Logger

	// OnError is called once when the handle fails.
	OnError func(error)
}

func (c Config) withDefaults() Config {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func (c Config) connConfig(sessionID string, role log.Role) transport.ConnConfig {
	return transport.ConnConfig{
		MaxMessageSize: c.MaxMessageSize,
		CloseTimeout:   c.CloseTimeout,
		SessionID:      sessionID,
		Role:           role,
		ProtocolLogger: c.ProtocolLogger,
		Logger:         c.Logger,
	}
}

// Handle is a broker bound to a worker connection.
type Handle struct {
	broker *broker.Broker
	conn   *transport.Conn

	closeOnce sync.Once
	closeErr  error
	// cleanup releases what the entry point started besides the broker
	// connection: an in-process worker or a child process.
	cleanup func() error
}

// Wrap runs a broker over conn. The handle starts serving conn, so conn
// must not be served elsewhere.
func Wrap(conn *transport.Conn, cfg Config) (*Handle, error) {
	return wrap(conn, cfg.withDefaults(), nil)
}

func wrap(conn *transport.Conn, cfg Config, cleanup func() error) (*Handle, error) {
	b, err := broker.New(broker.Config{
		Sender:         conn,
		MinDelay:       cfg.MinDelay,
		SessionID:      conn.SessionID(),
		Logger:         cfg.Logger,
		ProtocolLogger: cfg.ProtocolLogger,
		OnError:        cfg.OnError,
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Serve(b); err != nil {
		return nil, fmt.Errorf("serve worker connection: %w", err)
	}

	h := &Handle{broker: b, conn: conn, cleanup: cleanup}
	go h.watch()
	return h, nil
}

// watch ties the lifetimes of the broker and the connection together.
func (h *Handle) watch() {
	select {
	case <-h.conn.Done():
		if err := h.conn.Err(); err != nil {
			h.broker.Fail(fmt.Errorf("%w: %v", ErrDisconnected, err))
		} else {
			h.broker.Fail(ErrDisconnected)
		}
	case <-h.broker.Done():
		h.conn.Close()
	}
}

// SetTimeout schedules fn to run once after delay. It returns the timer
// id, or 0 if the handle has stopped.
func (h *Handle) SetTimeout(fn broker.Func, delay time.Duration, args ...any) uint64 {
	return h.broker.SetTimeout(fn, delay, args...)
}

// SetInterval schedules fn to run every delay until cleared. It returns
// the timer id, or 0 if the handle has stopped.
func (h *Handle) SetInterval(fn broker.Func, delay time.Duration, args ...any) uint64 {
	return h.broker.SetInterval(fn, delay, args...)
}

// ClearTimeout cancels a timeout. Unknown ids are ignored.
func (h *Handle) ClearTimeout(timerID uint64) {
	h.broker.ClearTimeout(timerID)
}

// ClearInterval cancels an interval. Unknown ids are ignored.
func (h *Handle) ClearInterval(timerID uint64) {
	h.broker.ClearInterval(timerID)
}

// Broker returns the underlying broker.
func (h *Handle) Broker() *broker.Broker {
	return h.broker
}

// Done is closed when the handle stops.
func (h *Handle) Done() <-chan struct{} {
	return h.broker.Done()
}

// Err returns why the handle stopped, or nil while it runs.
func (h *Handle) Err() error {
	return h.broker.Err()
}

// Close stops the broker, flushes queued requests and releases the
// worker.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.broker.Close()
		errs := []error{h.conn.Close()}
		if h.cleanup != nil {
			errs = append(errs, h.cleanup())
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}
