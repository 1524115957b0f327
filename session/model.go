package session

import (
	"time"

	"github.com/MrEthical07/goGate/internal"
)

// Record is one tracked session. Records are owned by the Manager; callers get
// copies.
type Record struct {
	ID                string            `json:"id"`
	PrincipalID       string            `json:"pid"`
	CreatedAt         time.Time         `json:"created_at"`
	LastActivity      time.Time         `json:"last_activity"`
	Active            bool              `json:"active"`
	DeviceFingerprint string            `json:"device,omitempty"`
	IPHash            string            `json:"ip,omitempty"`
	Tier              string            `json:"tier,omitempty"`
	Permissions       []string          `json:"perms,omitempty"`
	Metadata          map[string]string `json:"meta,omitempty"`
}

// Context describes the client creating a session.
type Context struct {
	// ClientHints are client-supplied device signals (user agent, platform,
	// screen, language). They are hashed into the device fingerprint.
	ClientHints []string
	// IP is the client address. Only its hash is stored.
	IP          string
	Tier        string
	Permissions []string
	Metadata    map[string]string
}

// Fingerprint returns the device fingerprint CreateSession derives from hints.
func Fingerprint(hints ...string) string {
	return internal.Fingerprint(hints...)
}

func (r *Record) clone() *Record {
	c := *r
	if r.Permissions != nil {
		c.Permissions = append([]string(nil), r.Permissions...)
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
