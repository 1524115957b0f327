// Package token implements the token lifecycle: issuing access/refresh pairs,
// verifying them, rotating refresh tokens on use, and revoking them singly or per
// principal.
//
// # Store layout
//
//   - <prefix>:rt:<sha256(refresh)>  hash {pid, jti}, TTL = refresh lifetime
//   - <prefix>:rtp:<principal>       set of refresh hashes, TTL = refresh lifetime
//
// # Failure policy
//
// Verification of refresh tokens fails closed: a store error is reported as
// ErrStoreUnavailable and the token is treated as unverifiable. Rotation revokes the
// presented token before minting its replacement; if minting fails afterwards the
// caller must treat the session as logged out.
package token
