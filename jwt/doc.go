// Package jwt signs and parses the two token kinds of the access plane.
//
// Access and refresh tokens are HMAC-SHA256 JWTs signed with distinct secrets. A
// token signed with one secret never verifies under the other, and the `typ` claim
// is checked on every parse so a refresh token cannot be presented as an access
// token (or the reverse) even if secrets were ever shared.
//
// # What this package must NOT do
//
//   - Touch the shared store. Revocation state belongs to package token.
//   - Interpret tier or permission claims.
package jwt
