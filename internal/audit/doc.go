// Package audit relays plane events to a caller-supplied Sink off the request
// path.
//
// The Dispatcher owns buffering only. Which events exist, and when they fire, is
// decided by the root package.
//
// # What this package must NOT do
//
//   - Filter events.
//   - Import goGate or a sibling internal package.
//   - Perform I/O beyond what a Sink does.
package audit
