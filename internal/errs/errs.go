// Package errs holds the sentinels shared by every manager so that a single
// errors.Is check classifies failures regardless of which package produced them.
package errs

import "errors"

var (
	// ErrConfiguration marks fatal startup-time configuration problems.
	ErrConfiguration = errors.New("configuration error")
	// ErrStoreUnavailable marks any failure talking to the shared store,
	// including timeouts.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidPrincipal is returned for operations keyed by an empty principal id.
	ErrInvalidPrincipal = errors.New("invalid principal")
)

// FailurePolicy describes how a component behaves when the shared store is down.
type FailurePolicy int

const (
	// FailClosed denies the operation.
	FailClosed FailurePolicy = iota
	// FailOpen admits the operation.
	FailOpen
)

func (p FailurePolicy) String() string {
	switch p {
	case FailClosed:
		return "fail-closed"
	case FailOpen:
		return "fail-open"
	default:
		return "unknown"
	}
}
