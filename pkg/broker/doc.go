// Package broker keeps timers scheduled on a remote worker in sync with
// the local callers that own them.
//
// A Broker offers SetTimeout, SetInterval, ClearTimeout and ClearInterval.
// Each call updates the broker's timer state tables synchronously and
// queues a request for the worker; the worker's answers arrive later
// through HandleMessage. The tables are what make that asynchrony safe:
//
//	ABSENT --set--> ACTIVE(token) --fire--> ABSENT            (timeout)
//	                ACTIVE(token) --fire--> ACTIVE(token)     (interval)
//	                ACTIVE(token) --clear--> PENDING_CLEAR --ack--> ABSENT
//
// A fire is honored only while the entry is ACTIVE with the token the
// firing request was issued for. Once a clear has been requested the
// callback never runs again, even if a fire crosses the clear in flight.
//
// Any message the broker cannot reconcile with its tables is a protocol
// violation. Violations and worker-reported errors are fatal: the broker
// stops, drains its tables and reports the error through Err, Done and
// Config.OnError. Nothing is retried.
package broker
