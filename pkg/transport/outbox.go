package transport

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

// ErrOutboxClosed is returned by Enqueue after Close.
var ErrOutboxClosed = errors.New("outbox closed")

// FrameSender writes one frame to the peer. Implemented by FrameWriter.
type FrameSender interface {
	WriteFrame(data []byte) error
}

// Outbox is an unbounded FIFO of outbound frames drained by a single
// writer goroutine. Enqueue never blocks, so callers may hold their own
// locks while sending; frames leave in enqueue order.
type Outbox struct {
	w       FrameSender
	onError func(error)

	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
	err    error

	done chan struct{}
}

// NewOutbox starts an outbox writing to w. onError, if set, is called
// once from the writer goroutine when a write fails; the outbox then
// stops and rejects further frames.
func NewOutbox(w FrameSender, onError func(error)) *Outbox {
	o := &Outbox{
		w:       w,
		onError: onError,
		q:       queue.New(),
		done:    make(chan struct{}),
	}
	o.cond = sync.NewCond(&o.mu)
	go o.run()
	return o
}

// Enqueue appends a frame to the outbox.
func (o *Outbox) Enqueue(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return o.err
	}
	if o.closed {
		return ErrOutboxClosed
	}
	o.q.Add(data)
	o.cond.Signal()
	return nil
}

// Len returns the number of frames waiting to be written.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

// Err returns the write error that stopped the outbox, if any.
func (o *Outbox) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Close stops accepting frames. Frames already queued are still written;
// Done is closed once the queue is drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Signal()
	o.mu.Unlock()
}

// Done is closed when the writer goroutine has exited.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox) run() {
	defer close(o.done)

	for {
		o.mu.Lock()
		for o.q.Length() == 0 && !o.closed {
			o.cond.Wait()
		}
		if o.q.Length() == 0 {
			o.mu.Unlock()
			return
		}
		data := o.q.Remove().([]byte)
		o.mu.Unlock()

		if err := o.w.WriteFrame(data); err != nil {
			o.mu.Lock()
			o.err = err
			o.closed = true
			for o.q.Length() > 0 {
				o.q.Remove()
			}
			o.mu.Unlock()
			if o.onError != nil {
				o.onError(err)
			}
			return
		}
	}
}
