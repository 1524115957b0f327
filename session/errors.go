package session

import (
	"errors"

	"github.com/MrEthical07/goGate/internal/errs"
)

var (
	// ErrConfiguration is returned by NewManager for unusable configuration.
	ErrConfiguration = errs.ErrConfiguration
	// ErrSessionNotFound is returned for absent sessions and, under the fail-closed
	// policy, for lookups the store could not answer.
	ErrSessionNotFound = errors.New("session not found")
	// ErrFingerprintRequired is returned by CreateSession when device fingerprints are
	// mandatory and the context carries no client hints.
	ErrFingerprintRequired = errors.New("device fingerprint required")
	// ErrStoreUnavailable wraps store transport errors and timeouts on mutating
	// operations.
	ErrStoreUnavailable = errs.ErrStoreUnavailable
	// ErrInvalidPrincipal is returned for operations keyed by an empty principal id.
	ErrInvalidPrincipal = errs.ErrInvalidPrincipal
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("session record corrupt")
)

// StoreFailurePolicy is the policy of this package.
const StoreFailurePolicy = errs.FailClosed
