package broker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/uniqueid"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// MinDelay is the smallest delay sent to the worker. Shorter and
// negative delays are raised to it.
const MinDelay time.Duration = 0

// Sender delivers an encoded message to the worker. Send must not block
// on I/O: the broker calls it while holding its lock.
// transport.Conn satisfies Sender.
type Sender interface {
	Send(data []byte) error
}

// Func is a timer callback. It receives the arguments given at
// scheduling time.
type Func func(args ...any)

// Config configures a Broker.
type Config struct {
	// Sender delivers requests to the worker. Required.
	Sender Sender

	// NewIDs creates the id generator of each table: one per timer type
	// and one for request ids. Defaults to uniqueid.New.
	NewIDs func() uniqueid.Generator

	// MinDelay raises shorter delays. Defaults to the package MinDelay.
	MinDelay time.Duration

	// Now returns the current time stamped on set requests.
	// Defaults to time.Now.
	Now func() time.Time

	// SessionID tags log events. Defaults to a random UUID.
	SessionID string

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives message and state change events.
	ProtocolLogger log.Logger

	// OnError is called once, outside the broker lock, when the broker
	// fails.
	OnError func(error)
}

// Stats is a point-in-time view of the broker.
type Stats struct {
	ActiveTimeouts  int
	ActiveIntervals int
	PendingClears   int
	PendingRequests int

	Fired       uint64
	Discarded   uint64
	Rescheduled uint64
}

// Broker owns the timer state tables of one worker session.
type Broker struct {
	config Config
	logger *slog.Logger
	plog   log.Logger

	mu         sync.Mutex
	timers     map[wire.TimerType]*timerstate.Table
	timerIDs   map[wire.TimerType]uniqueid.Generator
	requests   *timerstate.Requests
	requestIDs uniqueid.Generator
	err        error
	done       chan struct{}

	fired       uint64
	discarded   uint64
	rescheduled uint64
}

// New creates a broker with empty tables.
func New(config Config) (*Broker, error) {
	if config.Sender == nil {
		return nil, ErrNoSender
	}
	if config.NewIDs == nil {
		config.NewIDs = func() uniqueid.Generator { return uniqueid.New() }
	}
	if config.MinDelay < MinDelay {
		config.MinDelay = MinDelay
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		config: config,
		logger: logger.With("session_id", config.SessionID),
		plog:   log.OrNoop(config.ProtocolLogger),
		timers: map[wire.TimerType]*timerstate.Table{
			wire.TimerTypeInterval: timerstate.NewTable(),
			wire.TimerTypeTimeout:  timerstate.NewTable(),
		},
		timerIDs: map[wire.TimerType]uniqueid.Generator{
			wire.TimerTypeInterval: config.NewIDs(),
			wire.TimerTypeTimeout:  config.NewIDs(),
		},
		requests:   timerstate.NewRequests(),
		requestIDs: config.NewIDs(),
		done:       make(chan struct{}),
	}, nil
}

// SessionID returns the id tagging this broker's log events.
func (b *Broker) SessionID() string {
	return b.config.SessionID
}

// Err returns the error that stopped the broker: the first fatal error,
// ErrClosed after Close, or nil while running.
func (b *Broker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed when the broker stops.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Close stops the broker and drains its tables. Pending callbacks never
// run. Close does not close the Sender.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked(ErrClosed)
	return nil
}

// Fail stops the broker with err as if the worker had violated the
// protocol. Transports call it when the connection to the worker is lost.
// It has no effect on a stopped broker.
func (b *Broker) Fail(err error) {
	b.mu.Lock()
	report := b.failLocked(err)
	b.mu.Unlock()
	report()
}

// Lookup returns the state entry of a timer.
func (b *Broker) Lookup(timerType wire.TimerType, timerID uint64) (timerstate.Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tbl, ok := b.timers[timerType]
	if !ok || timerID == timerstate.Reserved {
		return timerstate.Entry{}, false
	}
	return tbl.Get(timerID)
}

// Timers returns a snapshot of the entries of one timer type.
func (b *Broker) Timers(timerType wire.TimerType) map[uint64]timerstate.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	tbl, ok := b.timers[timerType]
	if !ok {
		return nil
	}
	return tbl.Snapshot()
}

// Stats returns counters and table sizes.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		PendingClears:   b.requests.PendingClears(),
		PendingRequests: b.requests.Pending(),
		Fired:           b.fired,
		Discarded:       b.discarded,
		Rescheduled:     b.rescheduled,
	}
	for _, e := range b.timers[wire.TimerTypeTimeout].Snapshot() {
		if e.State == timerstate.StateActive {
			s.ActiveTimeouts++
		}
	}
	for _, e := range b.timers[wire.TimerTypeInterval].Snapshot() {
		if e.State == timerstate.StateActive {
			s.ActiveIntervals++
		}
	}
	return s
}

// stoppedLocked reports whether the broker no longer accepts work.
func (b *Broker) stoppedLocked() bool {
	return b.err != nil
}

// stopLocked records err, closes Done and drains the tables. It reports
// false if the broker was already stopped.
func (b *Broker) stopLocked(err error) bool {
	if b.err != nil {
		return false
	}
	b.err = err
	close(b.done)
	for _, tbl := range b.timers {
		tbl.Reset()
	}
	b.requests.Reset()
	return true
}

// failLocked stops the broker with a fatal error. The returned function
// reports the failure and must be called after the lock is released.
func (b *Broker) failLocked(err error) func() {
	if !b.stopLocked(err) {
		return func() {}
	}
	b.logger.Error("broker failed", "error", err)
	b.logError(log.LayerTimer, err, "fatal")

	onError := b.config.OnError
	return func() {
		if onError != nil {
			onError(err)
		}
	}
}

// send delivers an encoded message. Called with the lock held.
func (b *Broker) send(data []byte) error {
	return b.config.Sender.Send(data)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func epochMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}
