package jwt

import (
	"strconv"
	"strings"
)

const (
	// DefaultExpiryMillis is used whenever an expiry string cannot be parsed.
	DefaultExpiryMillis int64 = 60 * 60 * 1000
	// MaxExpiryMillis is the longest accepted lifetime, one year.
	MaxExpiryMillis int64 = 365 * 24 * 60 * 60 * 1000
)

var unitMillis = map[byte]int64{
	's': 1000,
	'm': 60 * 1000,
	'h': 60 * 60 * 1000,
	'd': 24 * 60 * 60 * 1000,
}

// ParseExpiry converts strings such as "45s", "30m", "1h" or "7d" to
// milliseconds. Empty input, unknown units, non-positive amounts and
// lifetimes above MaxExpiryMillis yield DefaultExpiryMillis so a token never
// ends up without an expiry.
func ParseExpiry(s string) int64 {
	ms, ok := parseExpiry(s)
	if !ok {
		return DefaultExpiryMillis
	}
	return ms
}

// ValidExpiry reports whether s parses without falling back to the default.
func ValidExpiry(s string) bool {
	_, ok := parseExpiry(s)
	return ok
}

func parseExpiry(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if len(s) < 2 {
		return 0, false
	}
	mult, ok := unitMillis[s[len(s)-1]]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 || n > MaxExpiryMillis/mult {
		return 0, false
	}
	return n * mult, true
}
