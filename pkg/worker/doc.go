// Package worker is the time-keeping side of the worker timers protocol.
//
// A Worker receives set and clear requests from a broker, runs the timers
// with time.AfterFunc and reports every elapsed timer, either as the
// response to its set request or as a call notification. It keeps no
// knowledge of callbacks or generations; those live in the broker.
package worker
