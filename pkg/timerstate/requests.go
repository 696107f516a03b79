package timerstate

import (
	"time"

	"github.com/mash-protocol/worker-timers-go/pkg/wire"
)

// RequestKind tells what a pending request asked the worker to do.
type RequestKind uint8

const (
	KindSet RequestKind = iota + 1
	KindClear
)

// String returns the request kind name.
func (k RequestKind) String() string {
	switch k {
	case KindSet:
		return "SET"
	case KindClear:
		return "CLEAR"
	default:
		return "UNKNOWN"
	}
}

// Request is the record of a request awaiting its response.
//
// For set requests Token is the generation the request was issued for and
// Callback/Args/Delay are what the fire continuation needs. Clear
// requests only use the timer reference.
type Request struct {
	Kind      RequestKind
	TimerID   uint64
	TimerType wire.TimerType
	Token     Token
	Delay     time.Duration
	Callback  func(args ...any)
	Args      []any
	IssuedAt  time.Time
}

// Ref returns the timer reference of the request.
func (r *Request) Ref() wire.TimerRef {
	return wire.TimerRef{TimerID: r.TimerID, TimerType: r.TimerType}
}

type timerKey struct {
	timerType wire.TimerType
	timerID   uint64
}

// Requests maps request ids to pending request records. It also indexes
// the outstanding set request of each timer so that a call notification,
// which names a timer rather than a request, can find its continuation.
type Requests struct {
	pending map[uint64]*Request
	sets    map[timerKey]uint64
}

// NewRequests creates an empty request table with the reserved id
// pre-populated.
func NewRequests() *Requests {
	return &Requests{
		pending: map[uint64]*Request{Reserved: nil},
		sets:    make(map[timerKey]uint64),
	}
}

// Has reports whether id is in use.
func (r *Requests) Has(id uint64) bool {
	_, ok := r.pending[id]
	return ok
}

// Len returns the number of ids in use, the reserved one included.
func (r *Requests) Len() int {
	return len(r.pending)
}

// Add records a pending request under id.
func (r *Requests) Add(id uint64, req *Request) {
	r.pending[id] = req
	if req.Kind == KindSet {
		r.sets[timerKey{req.TimerType, req.TimerID}] = id
	}
}

// Take removes and returns the request recorded under id. Every record
// is returned by Take at most once.
func (r *Requests) Take(id uint64) (*Request, bool) {
	if id == Reserved {
		return nil, false
	}
	req, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if req.Kind == KindSet {
		key := timerKey{req.TimerType, req.TimerID}
		if r.sets[key] == id {
			delete(r.sets, key)
		}
	}
	return req, true
}

// OutstandingSet returns the id of the set request still awaiting a fire
// for the named timer.
func (r *Requests) OutstandingSet(timerType wire.TimerType, timerID uint64) (uint64, bool) {
	id, ok := r.sets[timerKey{timerType, timerID}]
	return id, ok
}

// DropSet forgets the outstanding set request of the named timer and
// returns its id. Used once a clear is acknowledged: the worker will not
// answer that request any more.
func (r *Requests) DropSet(timerType wire.TimerType, timerID uint64) (uint64, bool) {
	key := timerKey{timerType, timerID}
	id, ok := r.sets[key]
	if !ok {
		return 0, false
	}
	delete(r.sets, key)
	delete(r.pending, id)
	return id, true
}

// Pending returns the number of requests awaiting a response.
func (r *Requests) Pending() int {
	return len(r.pending) - 1
}

// PendingClears returns the number of clear requests awaiting a response.
func (r *Requests) PendingClears() int {
	n := 0
	for id, req := range r.pending {
		if id != Reserved && req.Kind == KindClear {
			n++
		}
	}
	return n
}

// Reset drops every pending request.
func (r *Requests) Reset() {
	r.pending = map[uint64]*Request{Reserved: nil}
	r.sets = make(map[timerKey]uint64)
}
