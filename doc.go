// Package goGate is an access-control plane: token lifecycle, bounded sessions and
// sliding-window rate limiting over one shared Redis-compatible store.
//
// [Builder.Build] returns a [Plane] wrapping three independently usable managers:
//
//   - [token.Manager] issues, verifies, rotates and revokes access/refresh pairs.
//   - [session.Manager] records sessions and evicts the least recently active ones
//     beyond a per-principal cap.
//   - [ratelimit.Limiter] matches requests to ordered rules and counts them in a
//     sliding window.
//
// # Failure policy
//
// Token and session operations fail closed when the store is unavailable; rate
// limiting fails open. The policies are exposed as [TokenFailurePolicy],
// [SessionFailurePolicy] and [RateLimitFailurePolicy].
//
// # What this package must NOT do
//
//   - Make authorization decisions. Tier and permission claims are carried opaquely.
//   - Keep shared state in process memory. Every instance may serve every request.
package goGate
