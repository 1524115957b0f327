package middleware

import (
	"context"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
)

// SessionHeader carries the session id checked by ModeStrict.
const SessionHeader = "X-Session-ID"

// Mode selects how much a Guard verifies.
type Mode int

const (
	// ModeJWTOnly verifies the access token only.
	ModeJWTOnly Mode = iota
	// ModeStrict additionally requires a live session owned by the token subject.
	ModeStrict
)

// Guard rejects requests without a valid bearer access token with 401. Verified
// claims, and in ModeStrict the session, are stored on the request context.
func Guard(plane *goGate.Plane, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if plane == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := plane.VerifyAccessToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)

			if mode == ModeStrict {
				rec, err := plane.GetSession(r.Context(), r.Header.Get(SessionHeader))
				if err != nil || rec.PrincipalID != claims.Subject {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				ctx = context.WithValue(ctx, sessionContextKey{}, rec)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
