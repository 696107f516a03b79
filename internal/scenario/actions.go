package scenario

import (
	"fmt"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

type actionFunc func(x *execution, step *Step) error

// actions maps action names to their implementation.
var actions = map[string]actionFunc{
	"set_timeout":    setTimer(wire.TimerTypeTimeout),
	"set_interval":   setTimer(wire.TimerTypeInterval),
	"clear_timeout":  clearTimer(wire.TimerTypeTimeout),
	"clear_interval": clearTimer(wire.TimerTypeInterval),
	"fire":           fire,
	"notify":         notify,
	"ack_clear":      ackClear,
	"worker_error":   workerError,
	"garbage":        garbage,
	"close":          closeBroker,
	"check":          func(*execution, *Step) error { return nil },
}

// setTimer schedules a named timer. Params: timer, delay, clears_self.
func setTimer(timerType wire.TimerType) actionFunc {
	return func(x *execution, step *Step) error {
		name, err := paramString(step, "timer")
		if err != nil {
			return err
		}
		delay, err := paramDuration(step, "delay")
		if err != nil {
			return err
		}
		clearsSelf := paramBool(step, "clears_self")

		var id uint64
		fn := func(...any) {
			x.fired[name]++
			if clearsSelf {
				x.clear(timerType, id)
			}
		}

		if timerType == wire.TimerTypeInterval {
			id = x.broker.SetInterval(fn, delay)
		} else {
			id = x.broker.SetTimeout(fn, delay)
		}
		if id != wire.NoTimer {
			x.timers[name] = wire.TimerRef{TimerID: id, TimerType: timerType}
		}
		return nil
	}
}

func (x *execution) clear(timerType wire.TimerType, id uint64) {
	if timerType == wire.TimerTypeInterval {
		x.broker.ClearInterval(id)
	} else {
		x.broker.ClearTimeout(id)
	}
}

// clearTimer cancels a named timer, or a raw timer_id.
func clearTimer(timerType wire.TimerType) actionFunc {
	return func(x *execution, step *Step) error {
		ref, err := x.ref(step, timerType)
		if err != nil {
			return err
		}
		x.clear(timerType, ref.TimerID)
		return nil
	}
}

// fire answers the latest set request of a timer with a set response.
func fire(x *execution, step *Step) error {
	ref, err := x.ref(step, "")
	if err != nil {
		return err
	}
	id, err := x.requestID(step, x.lastSet, ref)
	if err != nil {
		return err
	}
	data, err := wire.EncodeSetResponse(id, wire.SetResult{TimerID: ref.TimerID, TimerType: ref.TimerType})
	if err != nil {
		return err
	}
	x.deliver(data)
	return nil
}

// notify sends a call notification naming a timer.
func notify(x *execution, step *Step) error {
	ref, err := x.ref(step, "")
	if err != nil {
		return err
	}
	data, err := wire.EncodeNotification(wire.MethodCall, ref)
	if err != nil {
		return err
	}
	x.deliver(data)
	return nil
}

// ackClear answers the latest clear request of a timer. Params: result
// (default true).
func ackClear(x *execution, step *Step) error {
	ref, err := x.ref(step, "")
	if err != nil {
		return err
	}
	id, err := x.requestID(step, x.lastClear, ref)
	if err != nil {
		return err
	}
	result := true
	if _, ok := step.Params["result"]; ok {
		result = paramBool(step, "result")
	}
	data, err := wire.EncodeClearResponse(id, result)
	if err != nil {
		return err
	}
	x.deliver(data)
	return nil
}

// workerError answers a request with an error response. Params:
// request_id or timer, message.
func workerError(x *execution, step *Step) error {
	var id uint64
	if _, ok := step.Params["request_id"]; ok {
		v, err := paramUint(step, "request_id")
		if err != nil {
			return err
		}
		id = v
	} else {
		ref, err := x.ref(step, "")
		if err != nil {
			return err
		}
		id = x.lastSet[ref]
	}
	message, _ := step.Params["message"].(string)
	data, err := wire.EncodeErrorResponse(id, message)
	if err != nil {
		return err
	}
	x.deliver(data)
	return nil
}

func garbage(x *execution, _ *Step) error {
	x.deliver([]byte{0xff, 0x00})
	return nil
}

func closeBroker(x *execution, _ *Step) error {
	return x.broker.Close()
}

// deliver hands a worker message to the broker. Broker failures are not
// step failures: they show up in the "error" output.
func (x *execution) deliver(data []byte) {
	_ = x.broker.HandleMessage(data)
}

// ref resolves the timer a step names: a scenario timer name, or a raw
// timer_id with timer_type (defaulting to defType).
func (x *execution) ref(step *Step, defType wire.TimerType) (wire.TimerRef, error) {
	if name, ok := step.Params["timer"].(string); ok {
		ref, ok := x.timers[name]
		if !ok {
			return ref, fmt.Errorf("unknown timer %q", name)
		}
		return ref, nil
	}

	id, err := paramUint(step, "timer_id")
	if err != nil {
		return wire.TimerRef{}, fmt.Errorf("timer or timer_id required: %w", err)
	}
	timerType := defType
	if s, ok := step.Params["timer_type"].(string); ok {
		timerType = wire.TimerType(s)
	}
	if timerType == "" {
		return wire.TimerRef{}, fmt.Errorf("timer_type required with timer_id")
	}
	return wire.TimerRef{TimerID: id, TimerType: timerType}, nil
}

// requestID returns the request_id param, or the latest request sent
// for ref.
func (x *execution) requestID(step *Step, latest map[wire.TimerRef]uint64, ref wire.TimerRef) (uint64, error) {
	if _, ok := step.Params["request_id"]; ok {
		return paramUint(step, "request_id")
	}
	id, ok := latest[ref]
	if !ok {
		return 0, fmt.Errorf("no request sent for %s %d", ref.TimerType, ref.TimerID)
	}
	return id, nil
}

func paramString(step *Step, key string) (string, error) {
	s, ok := step.Params[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}

func paramBool(step *Step, key string) bool {
	b, _ := step.Params[key].(bool)
	return b
}

func paramUint(step *Step, key string) (uint64, error) {
	switch v := step.Params[key].(type) {
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case uint64:
		return v, nil
	}
	return 0, fmt.Errorf("param %q must be a non-negative integer", key)
}

// paramDuration accepts a duration string ("10ms") or a number of
// milliseconds. A missing delay is zero.
func paramDuration(step *Step, key string) (time.Duration, error) {
	switch v := step.Params[key].(type) {
	case nil:
		return 0, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	}
	return 0, fmt.Errorf("param %q must be a duration", key)
}
