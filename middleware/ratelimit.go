package middleware

import (
	"net"
	"net/http"
	"strings"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/ratelimit"
)

// RateLimitOption customizes RateLimit.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	clientIP func(*http.Request) string
}

// WithClientIP overrides how the client address is derived. The default is the
// host part of RemoteAddr; deployments behind a trusted proxy should read the
// proxy's header instead.
func WithClientIP(fn func(*http.Request) string) RateLimitOption {
	return func(c *rateLimitConfig) {
		if fn != nil {
			c.clientIP = fn
		}
	}
}

// RateLimit checks each request against the plane's rules. Limited requests get
// 429 with Retry-After; admitted ones get quota headers and reach next. Store
// failures admit the request.
func RateLimit(plane *goGate.Plane, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := rateLimitConfig{clientIP: remoteHost}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if plane == nil {
				next.ServeHTTP(w, r)
				return
			}

			req := ratelimit.RequestContext{
				Method: r.Method,
				Path:   r.URL.Path,
				IP:     cfg.clientIP(r),
			}
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				req.PrincipalID, req.Tier = claims.Subject, claims.Tier
			} else if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
				if claims, err := plane.Tokens().VerifyAccessToken(token); err == nil {
					req.PrincipalID, req.Tier = claims.Subject, claims.Tier
				}
			}

			res, matched := plane.CheckRateLimit(r.Context(), req)
			if !matched {
				next.ServeHTTP(w, r)
				return
			}

			for k, v := range res.Headers(res.StandardHeaders) {
				w.Header()[k] = v
			}
			if res.Limited {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
