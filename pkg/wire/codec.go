package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for timer messages.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for timer messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Lenient for workers written against a newer schema.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// ErrUnknownMessage is returned by Classify for messages that match none
// of the worker-to-broker shapes.
var ErrUnknownMessage = errors.New("unknown message")

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeSetRequest encodes a set request. An id of NotificationID omits
// the id, asking the worker to answer with a call notification.
func EncodeSetRequest(id uint64, params SetParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid set request: %w", err)
	}
	wireMsg := struct {
		ID     uint64    `cbor:"id,omitempty"`
		Method string    `cbor:"method"`
		Params SetParams `cbor:"params"`
	}{
		ID:     id,
		Method: MethodSet,
		Params: params,
	}
	return Marshal(wireMsg)
}

// EncodeClearRequest encodes a clear request.
func EncodeClearRequest(id uint64, ref TimerRef) ([]byte, error) {
	if id == NotificationID {
		return nil, fmt.Errorf("invalid clear request: id %d is reserved for notifications", id)
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clear request: %w", err)
	}
	wireMsg := struct {
		ID     uint64   `cbor:"id"`
		Method string   `cbor:"method"`
		Params TimerRef `cbor:"params"`
	}{
		ID:     id,
		Method: MethodClear,
		Params: ref,
	}
	return Marshal(wireMsg)
}

// DecodeRequest decodes a broker-to-worker request.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("failed to decode request: %w: method missing", ErrUnknownMessage)
	}
	return &req, nil
}

// EncodeSetResponse encodes the response to a set request.
func EncodeSetResponse(id uint64, result SetResult) ([]byte, error) {
	wireMsg := struct {
		ID     uint64    `cbor:"id"`
		Result SetResult `cbor:"result"`
	}{
		ID:     id,
		Result: result,
	}
	return Marshal(wireMsg)
}

// EncodeClearResponse encodes the response to a clear request.
func EncodeClearResponse(id uint64, result bool) ([]byte, error) {
	wireMsg := struct {
		ID     uint64 `cbor:"id"`
		Result bool   `cbor:"result"`
	}{
		ID:     id,
		Result: result,
	}
	return Marshal(wireMsg)
}

// EncodeErrorResponse encodes an error response for the request with id.
func EncodeErrorResponse(id uint64, message string) ([]byte, error) {
	wireMsg := struct {
		ID    uint64      `cbor:"id"`
		Error ErrorObject `cbor:"error"`
	}{
		ID:    id,
		Error: ErrorObject{Message: message},
	}
	return Marshal(wireMsg)
}

// EncodeNotification encodes a call notification for the named timer.
func EncodeNotification(method string, ref TimerRef) ([]byte, error) {
	if method == "" {
		return nil, fmt.Errorf("invalid notification: method missing")
	}
	wireMsg := struct {
		Method string   `cbor:"method"`
		Params TimerRef `cbor:"params"`
	}{
		Method: method,
		Params: ref,
	}
	return Marshal(wireMsg)
}

// MessageType represents the type of a classified inbound message.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeNotification
	MessageTypeSetResponse
	MessageTypeClearResponse
	MessageTypeError
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeSetResponse:
		return "SET_RESPONSE"
	case MessageTypeClearResponse:
		return "CLEAR_RESPONSE"
	case MessageTypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// CBOR initial-byte values used to inspect a raw result.
const (
	cborFalse      = 0xf4
	cborTrue       = 0xf5
	cborMajorMap   = 5
	cborMajorShift = 5
)

// Classify decodes an inbound worker message and determines its type.
//
// Classification logic:
//   - Error: an "error" object is present
//   - Notification: "method" present and "id" absent or 0
//   - Clear response: non-zero "id" with a boolean "result"
//   - Set response: non-zero "id" with a map "result"
//
// Everything else yields ErrUnknownMessage.
func Classify(data []byte) (MessageType, *Envelope, error) {
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return MessageTypeUnknown, nil, fmt.Errorf("%w: %v", ErrUnknownMessage, err)
	}

	if env.Error != nil {
		return MessageTypeError, &env, nil
	}

	id := env.RequestID()

	if env.Method != "" {
		if id != NotificationID {
			return MessageTypeUnknown, &env, fmt.Errorf("%w: method %q with request id %d", ErrUnknownMessage, env.Method, id)
		}
		return MessageTypeNotification, &env, nil
	}

	if id == NotificationID || len(env.Result) == 0 {
		return MessageTypeUnknown, &env, fmt.Errorf("%w: neither method nor id/result", ErrUnknownMessage)
	}

	switch {
	case env.Result[0] == cborFalse || env.Result[0] == cborTrue:
		return MessageTypeClearResponse, &env, nil
	case env.Result[0]>>cborMajorShift == cborMajorMap:
		return MessageTypeSetResponse, &env, nil
	default:
		return MessageTypeUnknown, &env, fmt.Errorf("%w: result of response %d is neither boolean nor map", ErrUnknownMessage, id)
	}
}
