// Package log captures protocol events of the worker timers protocol.
//
// Capture is separate from operational logging (slog): it records a
// machine-readable trace of every frame, decoded message, timer state
// transition and protocol error, from either side of the message boundary.
//
// # Basic Usage
//
//	// Console, during development
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Binary capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/timers/broker.tlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded set/clear requests, responses and call notifications (MessageEvent)
//   - Timer: entry transitions ABSENT -> ACTIVE -> PENDING_CLEAR -> ABSENT (StateChangeEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Capture files are a sequence of CBOR-encoded events with integer keys,
// conventionally named *.tlog. The timers-log tool views, filters and
// summarizes them.
package log
