package broker

import (
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/log"
	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

func (b *Broker) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp: time.Now(),
		SessionID: b.config.SessionID,
		Direction: dir,
		Layer:     layer,
		Category:  cat,
		LocalRole: log.RoleBroker,
	}
}

func (b *Broker) logSetRequest(reqID uint64, params wire.SetParams, delay time.Duration) {
	e := b.event(log.DirectionOut, log.LayerWire, log.CategoryMessage)
	e.Message = &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		RequestID: reqID,
		Method:    wire.MethodSet,
		TimerID:   params.TimerID,
		TimerType: string(params.TimerType),
		Delay:     &delay,
	}
	b.plog.Log(e)
}

func (b *Broker) logClearRequest(reqID uint64, ref wire.TimerRef) {
	e := b.event(log.DirectionOut, log.LayerWire, log.CategoryMessage)
	e.Message = &log.MessageEvent{
		Type:      log.MessageTypeRequest,
		RequestID: reqID,
		Method:    wire.MethodClear,
		TimerID:   ref.TimerID,
		TimerType: string(ref.TimerType),
	}
	b.plog.Log(e)
}

// logInbound records a classified worker message.
func (b *Broker) logInbound(msgType wire.MessageType, env *wire.Envelope) {
	e := b.event(log.DirectionIn, log.LayerWire, log.CategoryMessage)
	m := &log.MessageEvent{RequestID: env.RequestID()}

	switch msgType {
	case wire.MessageTypeNotification:
		m.Type = log.MessageTypeNotification
		m.Method = env.Method
		if n, err := env.Notification(); err == nil {
			m.TimerID = n.Params.TimerID
			m.TimerType = string(n.Params.TimerType)
		}
	case wire.MessageTypeSetResponse:
		m.Type = log.MessageTypeResponse
		if res, err := env.SetResult(); err == nil {
			m.TimerID = res.TimerID
			m.TimerType = string(res.TimerType)
			m.Result = res
		}
	case wire.MessageTypeClearResponse:
		m.Type = log.MessageTypeResponse
		if ok, err := env.ClearResult(); err == nil {
			m.Result = ok
		}
	case wire.MessageTypeError:
		m.Type = log.MessageTypeError
		m.Result = env.Error.Message
	}

	e.Message = m
	b.plog.Log(e)
}

func (b *Broker) logStateChange(timerType wire.TimerType, timerID uint64, from, to timerstate.State, reason string) {
	e := b.event(log.DirectionOut, log.LayerTimer, log.CategoryState)
	e.StateChange = &log.StateChangeEvent{
		TimerID:   timerID,
		TimerType: string(timerType),
		OldState:  from.String(),
		NewState:  to.String(),
		Reason:    reason,
	}
	b.plog.Log(e)
}

func (b *Broker) logError(layer log.Layer, err error, context string) {
	e := b.event(log.DirectionIn, layer, log.CategoryError)
	e.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Context: context,
	}
	b.plog.Log(e)
}
