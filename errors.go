package goGate

import (
	"github.com/MrEthical07/goGate/internal/errs"
	"github.com/MrEthical07/goGate/ratelimit"
	"github.com/MrEthical07/goGate/session"
	"github.com/MrEthical07/goGate/token"
)

// Error taxonomy shared by every component. All values work with errors.Is
// regardless of which package returned them.
var (
	// ErrConfiguration is fatal at startup: weak secrets, missing fields, bad expiry
	// syntax.
	ErrConfiguration = errs.ErrConfiguration
	// ErrInvalidToken means the caller must re-authenticate.
	ErrInvalidToken = token.ErrInvalidToken
	// ErrTokenRevoked is treated like ErrInvalidToken by callers.
	ErrTokenRevoked = token.ErrTokenRevoked
	// ErrSessionNotFound is soft; the caller is unauthenticated.
	ErrSessionNotFound = session.ErrSessionNotFound
	// ErrFingerprintRequired is returned by CreateSession without client hints when
	// fingerprints are mandatory.
	ErrFingerprintRequired = session.ErrFingerprintRequired
	// ErrRateLimited is soft; the caller gets retry-after guidance.
	ErrRateLimited = ratelimit.ErrRateLimited
	// ErrStoreUnavailable is infrastructure failure. Tokens and sessions fail closed
	// on it, rate limiting fails open.
	ErrStoreUnavailable = errs.ErrStoreUnavailable
	// ErrInvalidPrincipal is returned for operations keyed by an empty principal.
	ErrInvalidPrincipal = errs.ErrInvalidPrincipal
)

// FailurePolicy describes how a component treats store failures.
type FailurePolicy = errs.FailurePolicy

const (
	FailClosed = errs.FailClosed
	FailOpen   = errs.FailOpen
)

// Per-component store failure policies.
const (
	TokenFailurePolicy     = token.StoreFailurePolicy
	SessionFailurePolicy   = session.StoreFailurePolicy
	RateLimitFailurePolicy = ratelimit.StoreFailurePolicy
)
