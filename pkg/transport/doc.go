// Package transport carries encoded timer protocol messages between a
// broker and its worker.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      CBOR Messages             │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│  net.Pipe | stdio | any stream │
//	└────────────────────────────────┘
//
// A Conn runs one read loop per connection, so inbound messages reach
// their handler strictly in arrival order. Outbound messages are queued
// in an Outbox and written by a dedicated goroutine: Send never blocks,
// which lets the broker send while holding its state lock without
// risking a deadlock against its own read loop.
package transport
