// Package audit relays authentication events to a Sink off the request path.
//
// A [Dispatcher] buffers [Event] values on a channel drained by one goroutine.
// With DropIfFull set, Emit never blocks and counts what it discards; otherwise
// Emit waits for room or for the caller's context. Close drains what is queued.
//
// Events never carry tokens, passwords or internal error text. The engine
// records stable error codes instead.
package audit
