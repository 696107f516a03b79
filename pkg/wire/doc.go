// Package wire defines the CBOR wire format exchanged between a timer
// broker and the worker that keeps time on its behalf.
//
// Messages are CBOR maps with string keys shaped like JSON-RPC:
//
//	request:      {"id": 7, "method": "set", "params": {...}}
//	response:     {"id": 7, "result": true}
//	error:        {"id": 7, "error": {"message": "..."}}
//	notification: {"method": "call", "params": {"timerId": 3, "timerType": "interval"}}
//
// # Message Types
//
// Broker to worker:
//   - set: schedule one firing of a timer after delay milliseconds
//   - clear: cancel a timer
//
// Worker to broker:
//   - set response: result is a map; the timer fired
//   - clear response: result is a boolean; the clear was processed
//   - call notification: the timer named in params fired
//   - error: the worker failed to process the request with that id
//
// # Reserved Identifiers
//
// Request id 0 (or no id at all) marks a notification. Timer id 0 is the
// "no timer" value of host timer APIs and is never assigned.
//
// Inbound messages are classified with [Classify], which rejects anything
// that does not match one of the worker-to-broker shapes.
package wire
