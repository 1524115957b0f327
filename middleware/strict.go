package middleware

import (
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

// RequireStrict returns Guard in ModeStrict.
func RequireStrict(plane *goGate.Plane) func(http.Handler) http.Handler {
	return Guard(plane, ModeStrict)
}
