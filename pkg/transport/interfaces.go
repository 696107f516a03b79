package transport

// Sender queues a message for the peer. Implemented by Conn and Outbox.
type Sender interface {
	Send(data []byte) error
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	// ReadFrame reads a length-prefixed frame.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a length-prefixed frame.
	WriteFrame(data []byte) error
}

// Send is Enqueue under the Sender name.
func (o *Outbox) Send(data []byte) error {
	return o.Enqueue(data)
}

// Compile-time interface satisfaction checks.
var (
	_ Sender          = (*Conn)(nil)
	_ Sender          = (*Outbox)(nil)
	_ FrameReadWriter = (*Framer)(nil)
	_ FrameSender     = (*FrameWriter)(nil)
)
