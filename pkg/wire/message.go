package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Method names.
const (
	MethodSet   = "set"
	MethodClear = "clear"
	MethodCall  = "call"
)

// NotificationID is the request id reserved for notifications.
const NotificationID uint64 = 0

// NoTimer is the timer id reserved as "no timer".
const NoTimer uint64 = 0

// Message validation errors.
var (
	ErrInvalidTimerType = errors.New("invalid timer type")
	ErrReservedTimerID  = errors.New("timer id 0 is reserved")
	ErrNegativeDelay    = errors.New("delay must not be negative")
	ErrUnknownMethod    = errors.New("unknown method")
)

// TimerType distinguishes repeating from one-shot timers.
// Each type has its own timer id namespace.
type TimerType string

const (
	// TimerTypeInterval is a repeating timer.
	TimerTypeInterval TimerType = "interval"

	// TimerTypeTimeout is a one-shot timer.
	TimerTypeTimeout TimerType = "timeout"
)

// IsValid reports whether t is a known timer type.
func (t TimerType) IsValid() bool {
	return t == TimerTypeInterval || t == TimerTypeTimeout
}

// String returns the timer type name.
func (t TimerType) String() string {
	if t.IsValid() {
		return string(t)
	}
	return "unknown"
}

// TimerRef names a timer. It is the params object of clear requests and
// call notifications.
type TimerRef struct {
	TimerID   uint64    `cbor:"timerId"`
	TimerType TimerType `cbor:"timerType"`
}

// Validate checks the timer reference.
func (r TimerRef) Validate() error {
	if !r.TimerType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTimerType, string(r.TimerType))
	}
	if r.TimerID == NoTimer {
		return ErrReservedTimerID
	}
	return nil
}

// SetParams is the params object of a set request.
//
// Delay is in milliseconds. Now is the sender's wall clock in
// milliseconds since the Unix epoch at the moment the request was issued;
// the worker uses it to subtract transit time from the delay.
type SetParams struct {
	TimerID   uint64    `cbor:"timerId"`
	TimerType TimerType `cbor:"timerType"`
	Delay     float64   `cbor:"delay"`
	Now       float64   `cbor:"now"`
}

// Ref returns the timer reference of the request.
func (p SetParams) Ref() TimerRef {
	return TimerRef{TimerID: p.TimerID, TimerType: p.TimerType}
}

// Validate checks the set params.
func (p SetParams) Validate() error {
	if err := p.Ref().Validate(); err != nil {
		return err
	}
	if p.Delay < 0 {
		return ErrNegativeDelay
	}
	return nil
}

// Request is a decoded broker-to-worker request.
// Params stays raw until the method is known.
type Request struct {
	ID     uint64          `cbor:"id,omitempty"`
	Method string          `cbor:"method"`
	Params cbor.RawMessage `cbor:"params,omitempty"`
}

// SetParams decodes the params of a set request.
func (r *Request) SetParams() (SetParams, error) {
	var p SetParams
	if r.Method != MethodSet {
		return p, fmt.Errorf("%w: %q is not %q", ErrUnknownMethod, r.Method, MethodSet)
	}
	if err := Unmarshal(r.Params, &p); err != nil {
		return p, fmt.Errorf("failed to decode set params: %w", err)
	}
	return p, p.Validate()
}

// ClearParams decodes the params of a clear request.
func (r *Request) ClearParams() (TimerRef, error) {
	var p TimerRef
	if r.Method != MethodClear {
		return p, fmt.Errorf("%w: %q is not %q", ErrUnknownMethod, r.Method, MethodClear)
	}
	if err := Unmarshal(r.Params, &p); err != nil {
		return p, fmt.Errorf("failed to decode clear params: %w", err)
	}
	return p, p.Validate()
}

// SetResult is the result object of a set response. Fields are optional
// on the wire; a zero TimerID means the worker did not echo it.
type SetResult struct {
	TimerID   uint64    `cbor:"timerId,omitempty"`
	TimerType TimerType `cbor:"timerType,omitempty"`
	FiredAt   float64   `cbor:"firedAt,omitempty"`
}

// ErrorObject carries a worker-reported failure.
type ErrorObject struct {
	Message string `cbor:"message"`
}

// Notification is a decoded call notification.
type Notification struct {
	Method string
	Params TimerRef
}

// Envelope is the superset of every worker-to-broker message shape.
// Presence of fields drives [Classify].
type Envelope struct {
	ID     *uint64         `cbor:"id,omitempty"`
	Method string          `cbor:"method,omitempty"`
	Params cbor.RawMessage `cbor:"params,omitempty"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *ErrorObject    `cbor:"error,omitempty"`
}

// RequestID returns the id of the message, or NotificationID when absent.
func (e *Envelope) RequestID() uint64 {
	if e.ID == nil {
		return NotificationID
	}
	return *e.ID
}

// Notification decodes the envelope as a call notification.
func (e *Envelope) Notification() (*Notification, error) {
	var ref TimerRef
	if err := Unmarshal(e.Params, &ref); err != nil {
		return nil, fmt.Errorf("failed to decode notification params: %w", err)
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return &Notification{Method: e.Method, Params: ref}, nil
}

// SetResult decodes the result of a set response.
func (e *Envelope) SetResult() (SetResult, error) {
	var res SetResult
	if err := Unmarshal(e.Result, &res); err != nil {
		return res, fmt.Errorf("failed to decode set result: %w", err)
	}
	return res, nil
}

// ClearResult decodes the result of a clear response.
func (e *Envelope) ClearResult() (bool, error) {
	var ok bool
	if err := Unmarshal(e.Result, &ok); err != nil {
		return false, fmt.Errorf("failed to decode clear result: %w", err)
	}
	return ok, nil
}
