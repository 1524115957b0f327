// Package middleware adapts a goGate.Plane to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and, in [ModeStrict], the session
//     named by the X-Session-ID header.
//   - [RequireJWTOnly] is Guard in [ModeJWTOnly]: no store round trip.
//   - [RequireStrict] is Guard in [ModeStrict].
//
// # Rate limiting
//
// [RateLimit] checks every request against the plane's rule set, writes the quota
// headers and answers 429 with Retry-After when the request is limited. When a
// guard ran earlier in the chain, or the request carries a valid bearer token,
// the principal and tier are available to rules and key functions.
//
// # What this package must NOT do
//
//   - Sign tokens or touch the store directly (the Plane owns both).
//   - Make authorization decisions beyond pass/reject.
package middleware
