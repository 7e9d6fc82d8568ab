// Package secret holds the random-token and digest primitives shared by the
// refresh, reset and revocation packages.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

const (
	// ResetTokenBytes is the entropy of a password-reset token.
	ResetTokenBytes = 32
	// RefreshTokenBytes is the entropy of an opaque refresh token.
	RefreshTokenBytes = 64
)

var errInvalidLength = errors.New("secret: byte length must be positive")

// GenerateSecureToken returns byteLength bytes from crypto/rand, hex encoded.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", errInvalidLength
	}
	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashOpaqueToken returns the hex sha256 digest used to index stored tokens.
func HashOpaqueToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Equal compares two strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
