// Package workertimers connects a timer broker to a worker and exposes
// the host-style timer API on top.
//
// Three entry points cover the usual deployments:
//
//	h, err := workertimers.LoadInProcess(cfg)            // worker in this process
//	h, err := workertimers.Load(ctx, "timers-worker", cfg) // worker as a child process
//	h, err := workertimers.Wrap(conn, cfg)               // any framed connection
//
// The Handle schedules through the broker and stops when either side
// goes away. ServeWorker is the other end: it runs a worker over any
// stream, and is what cmd/timers-worker uses on stdin/stdout.
package workertimers
