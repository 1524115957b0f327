package token

import (
	"errors"

	"github.com/MrEthical07/goGate/internal/errs"
	"github.com/MrEthical07/goGate/jwt"
)

var (
	// ErrConfiguration is returned by NewManager for unusable configuration.
	ErrConfiguration = errs.ErrConfiguration
	// ErrInvalidToken covers signature, format, expiry, issuer, audience and kind
	// failures. The caller must re-authenticate.
	ErrInvalidToken = jwt.ErrInvalidToken
	// ErrTokenRevoked is returned when a cryptographically valid refresh token has no
	// live record in the store.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrStoreUnavailable wraps store transport errors and timeouts.
	ErrStoreUnavailable = errs.ErrStoreUnavailable
	// ErrInvalidPrincipal is returned when issuing tokens for an empty principal id.
	ErrInvalidPrincipal = errs.ErrInvalidPrincipal
)

// StoreFailurePolicy is the policy of this package. Refresh verification denies
// when the store cannot confirm the token.
const StoreFailurePolicy = errs.FailClosed
