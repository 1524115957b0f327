package middleware

import (
	"context"

	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/session"
)

type claimsContextKey struct{}

type sessionContextKey struct{}

// ClaimsFromContext returns the access claims a guard stored on ctx.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return c, ok
}

// SessionFromContext returns the session a strict guard stored on ctx.
func SessionFromContext(ctx context.Context) (*session.Record, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*session.Record)
	return s, ok
}
