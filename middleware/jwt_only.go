package middleware

import (
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

// RequireJWTOnly returns Guard in ModeJWTOnly.
func RequireJWTOnly(plane *goGate.Plane) func(http.Handler) http.Handler {
	return Guard(plane, ModeJWTOnly)
}
