// Package session tracks one record per authenticated device and bounds how many
// records a principal may hold at once.
//
// # Store layout
//
// Every key is namespaced by the configured prefix:
//
//	<prefix>:s:<id>            session record (JSON, TTL = session TTL)
//	<prefix>:sp:<principal>    ordered set of session ids scored by last activity (ms)
//	<prefix>:sd:<fingerprint>  set of session ids created from one device fingerprint
//	<prefix>:si:<ipHash>       set of session ids created from one client address
//
// Removing a session always unwinds the primary record and every index membership
// in a single script invocation.
//
// # Failure policy
//
// Lookups fail closed: a store error is reported to the caller as
// [ErrSessionNotFound], exactly like an absent session.
//
// # Identity signals
//
// Device fingerprints and address hashes are best-effort signals. Two clients that
// send identical hints share a fingerprint; this is an accepted limitation.
package session
