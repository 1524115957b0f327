package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashBindingValue hashes a single client-supplied identity signal such as an IP
// address. Empty input yields an empty string so callers can skip the index.
func HashBindingValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// Fingerprint derives a device fingerprint from client hints. Hints are
// trimmed and lowercased; empty hints are skipped. Two devices that send identical
// hints share a fingerprint.
func Fingerprint(hints ...string) string {
	var b strings.Builder
	n := 0
	for _, h := range hints {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if n > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(h)
		n++
	}
	if n == 0 {
		return ""
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
