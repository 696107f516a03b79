package broker

import (
	"fmt"

	"github.com/mash-protocol/worker-timers-go/pkg/timerstate"
	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// ClearTimeout cancels a timeout. Unknown ids, ids already being
// cleared and the reserved id 0 are ignored.
func (b *Broker) ClearTimeout(timerID uint64) {
	b.cancel(wire.TimerTypeTimeout, timerID)
}

// ClearInterval cancels an interval. Unknown ids, ids already being
// cleared and the reserved id 0 are ignored.
func (b *Broker) ClearInterval(timerID uint64) {
	b.cancel(wire.TimerTypeInterval, timerID)
}

func (b *Broker) cancel(timerType wire.TimerType, timerID uint64) {
	b.mu.Lock()
	if b.stoppedLocked() {
		b.mu.Unlock()
		return
	}

	tbl := b.timers[timerType]
	entry, ok := tbl.Get(timerID)
	if !ok || entry.State != timerstate.StateActive {
		b.mu.Unlock()
		return
	}

	reqID := b.requestIDs.Next(b.requests)
	b.requests.Add(reqID, &timerstate.Request{
		Kind:      timerstate.KindClear,
		TimerID:   timerID,
		TimerType: timerType,
		IssuedAt:  b.config.Now(),
	})
	tbl.MarkPendingClear(timerID)
	b.logStateChange(timerType, timerID, timerstate.StateActive, timerstate.StatePendingClear, "clear")

	if err := b.sendClearLocked(reqID, wire.TimerRef{TimerID: timerID, TimerType: timerType}); err != nil {
		report := b.failLocked(err)
		b.mu.Unlock()
		report()
		return
	}
	b.mu.Unlock()

	b.logger.Debug("timer clear requested", "timer_type", timerType, "timer_id", timerID, "request_id", reqID)
}

func (b *Broker) sendClearLocked(reqID uint64, ref wire.TimerRef) error {
	data, err := wire.EncodeClearRequest(reqID, ref)
	if err != nil {
		return fmt.Errorf("encode clear request: %w", err)
	}
	if err := b.send(data); err != nil {
		return fmt.Errorf("send clear request: %w", err)
	}
	b.logClearRequest(reqID, ref)
	return nil
}

// acknowledgeLocked finalizes the clear recorded in req: the entry goes
// away and the set request the worker will no longer answer is dropped.
func (b *Broker) acknowledgeLocked(req *timerstate.Request) {
	tbl := b.timers[req.TimerType]
	old := timerstate.State(0)
	if e, ok := tbl.Get(req.TimerID); ok {
		old = e.State
	}
	tbl.Delete(req.TimerID)
	b.requests.DropSet(req.TimerType, req.TimerID)
	b.logStateChange(req.TimerType, req.TimerID, old, timerstate.State(0), "clear acknowledged")
}
