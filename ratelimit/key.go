package ratelimit

import "strings"

// RequestContext carries the request attributes rules match on and keys are
// derived from.
type RequestContext struct {
	Method      string
	Path        string
	IP          string
	PrincipalID string
	Tier        string
}

// Authenticated reports whether the request carries a verified principal.
func (r RequestContext) Authenticated() bool {
	return r.PrincipalID != ""
}

// KeyFunc derives the counter key for a request.
type KeyFunc func(RequestContext) string

// KeyByIP keys on the client address.
func KeyByIP(r RequestContext) string {
	return "ip:" + r.IP
}

// KeyByPrincipal keys on the authenticated principal, falling back to the client
// address for anonymous requests.
func KeyByPrincipal(r RequestContext) string {
	if r.PrincipalID == "" {
		return KeyByIP(r)
	}
	return "principal:" + r.PrincipalID
}

// KeyByEndpoint keys on method and path, so every client shares one budget per
// endpoint.
func KeyByEndpoint(r RequestContext) string {
	return "endpoint:" + strings.ToUpper(r.Method) + ":" + r.Path
}

// KeyComposite joins the keys produced by fns.
func KeyComposite(fns ...KeyFunc) KeyFunc {
	return func(r RequestContext) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if fn != nil {
				parts = append(parts, fn(r))
			}
		}
		return strings.Join(parts, "|")
	}
}
