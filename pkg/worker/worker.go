package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// ErrNoSender is returned by New when Config.Sender is nil.
var ErrNoSender = errors.New("no sender configured")

// Sender delivers an encoded message to the broker. Fired timers are
// reported under the timer lock so that a clear response never overtakes
// the reply of a timer that already fired; Send must therefore not block
// on I/O. transport.Conn satisfies Sender.
type Sender interface {
	Send(data []byte) error
}

// Config configures a Worker.
type Config struct {
	// Sender delivers responses and notifications. Required.
	Sender Sender

	// NotifyFires reports elapsed timers as call notifications instead of
	// set responses.
	NotifyFires bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// SessionID tags log events. Defaults to a random UUID.
	SessionID string

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives message events.
	ProtocolLogger log.Logger
}

// Worker answers the requests of one broker.
type Worker struct {
	config  Config
	logger  *slog.Logger
	plog    log.Logger
	manager *Manager
}

// New creates a worker.
func New(config Config) (*Worker, error) {
	if config.Sender == nil {
		return nil, ErrNoSender
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

	w := &Worker{
		config: config,
		logger: logger.With("session_id", config.SessionID, "role", log.RoleWorker.String()),
		plog:   log.OrNoop(config.ProtocolLogger),
	}
	w.manager = NewManager(w.fire)
	return w, nil
}

// Close stops all timers. Nothing fires after Close returns.
func (w *Worker) Close() error {
	if n := w.manager.CancelAll(); n > 0 {
		w.logger.Debug("stopped running timers", "count", n)
	}
	return nil
}

// OnMessage makes the worker a transport.Handler. Malformed requests
// are answered with an error response; the worker keeps serving.
func (w *Worker) OnMessage(data []byte) error {
	return w.HandleMessage(data)
}

// HandleMessage processes one request from the broker. It returns an
// error only if a reply could not be sent.
func (w *Worker) HandleMessage(data []byte) error {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		w.logger.Warn("undecodable request", "error", err)
		return w.reply(wire.EncodeErrorResponse(wire.NotificationID, err.Error()))
	}

	switch req.Method {
	case wire.MethodSet:
		return w.handleSet(req)
	case wire.MethodClear:
		return w.handleClear(req)
	default:
		w.logMessage(log.DirectionIn, log.MessageTypeRequest, req.ID, req.Method, wire.TimerRef{})
		return w.replyError(req.ID, fmt.Sprintf("%v: %q", wire.ErrUnknownMethod, req.Method))
	}
}

func (w *Worker) handleSet(req *wire.Request) error {
	params, err := req.SetParams()
	if err != nil {
		return w.replyError(req.ID, err.Error())
	}
	ref := params.Ref()
	w.logMessage(log.DirectionIn, log.MessageTypeRequest, req.ID, req.Method, ref)

	delay := w.remaining(params)
	w.manager.SetTimer(ref, req.ID, delay)
	w.logger.Debug("timer armed", "timer_type", ref.TimerType, "timer_id", ref.TimerID, "delay", delay)
	return nil
}

func (w *Worker) handleClear(req *wire.Request) error {
	ref, err := req.ClearParams()
	if err != nil {
		return w.replyError(req.ID, err.Error())
	}
	w.logMessage(log.DirectionIn, log.MessageTypeRequest, req.ID, req.Method, ref)

	found := w.manager.CancelTimer(ref)
	w.logger.Debug("timer cleared", "timer_type", ref.TimerType, "timer_id", ref.TimerID, "found", found)

	data, err := wire.EncodeClearResponse(req.ID, found)
	if err := w.reply(data, err); err != nil {
		return err
	}
	w.logMessage(log.DirectionOut, log.MessageTypeResponse, req.ID, "", ref)
	return nil
}

// remaining subtracts the transit time since the broker stamped the
// request from the requested delay.
func (w *Worker) remaining(params wire.SetParams) time.Duration {
	delay := time.Duration(params.Delay * float64(time.Millisecond))
	if params.Now <= 0 {
		return delay
	}
	sent := time.UnixMilli(0).Add(time.Duration(params.Now * float64(time.Millisecond)))
	if transit := w.config.Now().Sub(sent); transit > 0 {
		delay -= transit
	}
	return max(delay, 0)
}

// fire reports an elapsed timer to the broker. It runs under the
// manager lock.
func (w *Worker) fire(t Timer) {
	var (
		data []byte
		err  error
	)
	if w.config.NotifyFires || t.RequestID == wire.NotificationID {
		data, err = wire.EncodeNotification(wire.MethodCall, t.Ref)
	} else {
		firedAt := float64(w.config.Now().UnixNano()) / float64(time.Millisecond)
		data, err = wire.EncodeSetResponse(t.RequestID, wire.SetResult{
			TimerID:   t.Ref.TimerID,
			TimerType: t.Ref.TimerType,
			FiredAt:   math.Round(firedAt*1000) / 1000,
		})
	}
	if err := w.reply(data, err); err != nil {
		w.logger.Error("failed to report fired timer", "timer_type", t.Ref.TimerType, "timer_id", t.Ref.TimerID, "error", err)
		return
	}

	msgType := log.MessageTypeResponse
	if w.config.NotifyFires || t.RequestID == wire.NotificationID {
		msgType = log.MessageTypeNotification
	}
	w.logMessage(log.DirectionOut, msgType, t.RequestID, "", t.Ref)
}

func (w *Worker) replyError(id uint64, message string) error {
	w.logger.Warn("rejecting request", "request_id", id, "reason", message)
	return w.reply(wire.EncodeErrorResponse(id, message))
}

func (w *Worker) reply(data []byte, err error) error {
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := w.config.Sender.Send(data); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (w *Worker) logMessage(dir log.Direction, msgType log.MessageType, id uint64, method string, ref wire.TimerRef) {
	w.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: w.config.SessionID,
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleWorker,
		Message: &log.MessageEvent{
			Type:      msgType,
			RequestID: id,
			Method:    method,
			TimerID:   ref.TimerID,
			TimerType: string(ref.TimerType),
		},
	})
}
