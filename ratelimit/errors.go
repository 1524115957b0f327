package ratelimit

import (
	"errors"

	"github.com/MrEthical07/goGate/internal/errs"
)

var (
	// ErrConfiguration is returned for invalid rules or limiter configuration.
	ErrConfiguration = errs.ErrConfiguration
	// ErrRateLimited is returned by Result.Err for limited requests.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps store failures on administrative calls such as Reset.
	ErrStoreUnavailable = errs.ErrStoreUnavailable
)

// StoreFailurePolicy is the policy of this package. Checks admit the request when
// the store is unavailable.
const StoreFailurePolicy = errs.FailOpen
