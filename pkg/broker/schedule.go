package broker

import (
	"fmt"
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// SetTimeout schedules fn to run once after delay and returns the timer
// id. It returns 0 if the broker has stopped.
func (b *Broker) SetTimeout(fn Func, delay time.Duration, args ...any) uint64 {
	return b.schedule(wire.TimerTypeTimeout, fn, delay, args)
}

// SetInterval schedules fn to run every delay and returns the timer id.
// It returns 0 if the broker has stopped.
func (b *Broker) SetInterval(fn Func, delay time.Duration, args ...any) uint64 {
	return b.schedule(wire.TimerTypeInterval, fn, delay, args)
}

func (b *Broker) schedule(timerType wire.TimerType, fn Func, delay time.Duration, args []any) uint64 {
	if delay < b.config.MinDelay {
		delay = b.config.MinDelay
	}

	b.mu.Lock()
	if b.stoppedLocked() {
		b.mu.Unlock()
		return 0
	}

	tbl := b.timers[timerType]
	timerID := b.timerIDs[timerType].Next(tbl)
	token := timerstate.NewToken()

	tbl.Activate(timerID, token)
	b.logStateChange(timerType, timerID, timerstate.State(0), timerstate.StateActive, "set")

	req := &timerstate.Request{
		Kind:      timerstate.KindSet,
		TimerID:   timerID,
		TimerType: timerType,
		Token:     token,
		Delay:     delay,
		Callback:  fn,
		Args:      args,
	}
	if err := b.sendSetLocked(req); err != nil {
		report := b.failLocked(err)
		b.mu.Unlock()
		report()
		return 0
	}
	b.mu.Unlock()

	b.logger.Debug("timer scheduled", "timer_type", timerType, "timer_id", timerID, "delay", delay)
	return timerID
}

// sendSetLocked records req under a fresh request id and queues the set
// request for it.
func (b *Broker) sendSetLocked(req *timerstate.Request) error {
	reqID := b.requestIDs.Next(b.requests)
	req.IssuedAt = b.config.Now()
	b.requests.Add(reqID, req)

	params := wire.SetParams{
		TimerID:   req.TimerID,
		TimerType: req.TimerType,
		Delay:     millis(req.Delay),
		Now:       epochMillis(req.IssuedAt),
	}
	data, err := wire.EncodeSetRequest(reqID, params)
	if err != nil {
		return fmt.Errorf("encode set request: %w", err)
	}
	if err := b.send(data); err != nil {
		return fmt.Errorf("send set request: %w", err)
	}
	b.logSetRequest(reqID, params, req.Delay)
	return nil
}

// fireLocked resolves the set request req, which the worker reported as
// elapsed. It returns req if its callback must run, nil if the fire is
// to be discarded.
func (b *Broker) fireLocked(req *timerstate.Request) (*timerstate.Request, error) {
	tbl := b.timers[req.TimerType]
	entry, ok := tbl.Get(req.TimerID)
	switch {
	case !ok:
		return nil, undefinedState("%s %d fired without an entry", req.TimerType, req.TimerID)
	case entry.State == timerstate.StatePendingClear:
		b.discarded++
		b.logger.Debug("fire discarded, clear pending", "timer_type", req.TimerType, "timer_id", req.TimerID)
		return nil, nil
	case !entry.IsActive(req.Token):
		b.discarded++
		b.logger.Debug("fire discarded, stale generation", "timer_type", req.TimerType, "timer_id", req.TimerID)
		return nil, nil
	}

	b.fired++
	if req.TimerType == wire.TimerTypeTimeout {
		tbl.Delete(req.TimerID)
		b.logStateChange(req.TimerType, req.TimerID, timerstate.StateActive, timerstate.State(0), "fired")
	}
	return req, nil
}

// run invokes the callback of a fired request outside the lock and, for
// intervals the callback left untouched, schedules the next period with
// the same generation token.
func (b *Broker) run(req *timerstate.Request) {
	if req.Callback != nil {
		req.Callback(req.Args...)
	}
	if req.TimerType != wire.TimerTypeInterval {
		return
	}

	b.mu.Lock()
	if b.stoppedLocked() {
		b.mu.Unlock()
		return
	}
	entry, ok := b.timers[req.TimerType].Get(req.TimerID)
	if !ok || !entry.IsActive(req.Token) {
		b.mu.Unlock()
		return
	}

	next := &timerstate.Request{
		Kind:      timerstate.KindSet,
		TimerID:   req.TimerID,
		TimerType: req.TimerType,
		Token:     req.Token,
		Delay:     req.Delay,
		Callback:  req.Callback,
		Args:      req.Args,
	}
	if err := b.sendSetLocked(next); err != nil {
		report := b.failLocked(err)
		b.mu.Unlock()
		report()
		return
	}
	b.rescheduled++
	b.mu.Unlock()
}
