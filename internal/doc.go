// Package internal contains helpers that are private to goGate: secure session
// identifiers, token and device hashing, and per-call store timeouts.
//
// # Sub-packages
//
//   - errs: sentinels shared by every manager and the store failure policy
//   - audit: asynchronous audit event dispatcher and sinks
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGate API.
//   - Talk to the shared store.
package internal
