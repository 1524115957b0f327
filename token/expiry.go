package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var expiryUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
}

// ParseExpiry converts strings such as "30s", "15m", "2h" or "7d" to seconds.
// Anything else, including zero, negative and unit-less values, is a
// configuration error.
func ParseExpiry(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: malformed expiry %q", ErrConfiguration, s)
	}
	mult, ok := expiryUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown expiry unit in %q", ErrConfiguration, s)
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: malformed expiry %q", ErrConfiguration, s)
	}
	if n > (1<<62)/mult {
		return 0, fmt.Errorf("%w: expiry %q overflows", ErrConfiguration, s)
	}
	return n * mult, nil
}

// ParseExpiryDuration is ParseExpiry expressed as a time.Duration.
func ParseExpiryDuration(s string) (time.Duration, error) {
	secs, err := ParseExpiry(s)
	if err != nil {
		return 0, err
	}
	if secs > int64((1<<63-1)/time.Second) {
		return 0, fmt.Errorf("%w: expiry %q overflows", ErrConfiguration, s)
	}
	return time.Duration(secs) * time.Second, nil
}
