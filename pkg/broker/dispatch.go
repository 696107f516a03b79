package broker

import (
	"fmt"

	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// HandleMessage processes one message from the worker. Messages must be
// passed in arrival order from a single goroutine. Fired callbacks run
// on the calling goroutine before HandleMessage returns.
//
// A non-nil error is fatal: the broker has stopped and every later call
// returns the same error.
func (b *Broker) HandleMessage(data []byte) error {
	msgType, env, classifyErr := wire.Classify(data)

	b.mu.Lock()
	if b.stoppedLocked() {
		err := b.err
		b.mu.Unlock()
		return err
	}

	var (
		fired *timerstate.Request
		err   = classifyErr
	)
	if err == nil {
		b.logInbound(msgType, env)
		switch msgType {
		case wire.MessageTypeError:
			err = &RemoteError{RequestID: env.RequestID(), Message: env.Error.Message}
		case wire.MessageTypeNotification:
			fired, err = b.handleNotificationLocked(env)
		case wire.MessageTypeSetResponse:
			fired, err = b.handleSetResponseLocked(env)
		case wire.MessageTypeClearResponse:
			err = b.handleClearResponseLocked(env)
		default:
			err = fmt.Errorf("%w: %s", wire.ErrUnknownMessage, msgType)
		}
	}

	if err != nil {
		report := b.failLocked(err)
		b.mu.Unlock()
		report()
		return err
	}
	b.mu.Unlock()

	if fired != nil {
		b.run(fired)
	}
	return nil
}

// OnMessage makes the broker a transport.Handler.
func (b *Broker) OnMessage(data []byte) error {
	return b.HandleMessage(data)
}

// handleNotificationLocked resolves a call notification through the
// outstanding set request of the named timer.
func (b *Broker) handleNotificationLocked(env *wire.Envelope) (*timerstate.Request, error) {
	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrUnknownMessage, err)
	}
	if n.Method != wire.MethodCall {
		return nil, fmt.Errorf("%w: notification method %q", wire.ErrUnknownMessage, n.Method)
	}

	reqID, ok := b.requests.OutstandingSet(n.Params.TimerType, n.Params.TimerID)
	if !ok {
		return nil, undefinedState("call for %s %d without a pending set", n.Params.TimerType, n.Params.TimerID)
	}
	req, _ := b.requests.Take(reqID)
	return b.fireLocked(req)
}

func (b *Broker) handleSetResponseLocked(env *wire.Envelope) (*timerstate.Request, error) {
	res, err := env.SetResult()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", wire.ErrUnknownMessage, err)
	}

	reqID := env.RequestID()
	req, ok := b.requests.Take(reqID)
	if !ok {
		return nil, undefinedState("set response %d without a pending request", reqID)
	}
	if req.Kind != timerstate.KindSet {
		return nil, undefinedState("set response %d answers a %s request", reqID, req.Kind)
	}
	if res.TimerID != wire.NoTimer && (res.TimerID != req.TimerID || res.TimerType != req.TimerType) {
		return nil, undefinedState("set response %d names %s %d, request was for %s %d",
			reqID, res.TimerType, res.TimerID, req.TimerType, req.TimerID)
	}
	return b.fireLocked(req)
}

func (b *Broker) handleClearResponseLocked(env *wire.Envelope) error {
	if _, err := env.ClearResult(); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrUnknownMessage, err)
	}

	reqID := env.RequestID()
	req, ok := b.requests.Take(reqID)
	if !ok {
		return undefinedState("clear response %d without a pending request", reqID)
	}
	if req.Kind != timerstate.KindClear {
		return undefinedState("clear response %d answers a %s request", reqID, req.Kind)
	}
	b.acknowledgeLocked(req)
	return nil
}
