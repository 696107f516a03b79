package log

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrameData bounds the raw frame bytes kept in an encoded event.
// Longer frames are cut and marked Truncated.
const MaxFrameData = 4096

// A log file is a plain sequence of CBOR data items, one per event, so
// loggers append to it and readers stream it without framing.
var (
	eventEnc cbor.EncMode
	eventDec cbor.DecMode
)

func init() {
	var err error

	eventEnc, err = cbor.EncOptions{
		Sort:        cbor.SortCoreDeterministic,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: event encoder: %v", err))
	}

	eventDec, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
		// MessageEvent.Result is untyped. Set results are maps with
		// string keys; decoding them as map[string]any keeps them
		// printable as JSON.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: event decoder: %v", err))
	}
}

// EncodeEvent encodes one event as it is stored in a log file.
func EncodeEvent(event Event) ([]byte, error) {
	if f := event.Frame; f != nil && len(f.Data) > MaxFrameData {
		clipped := *f
		clipped.Data = f.Data[:MaxFrameData]
		clipped.Truncated = true
		event.Frame = &clipped
	}
	return eventEnc.Marshal(event)
}
