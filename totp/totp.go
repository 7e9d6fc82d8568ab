// Package totp implements RFC 6238 time-based one-time passwords.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var (
	ErrEmptySecret          = errors.New("totp: empty secret")
	ErrInvalidSecret        = errors.New("totp: secret is not valid base32")
	ErrUnsupportedAlgorithm = errors.New("totp: unsupported algorithm")
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code shape and the accepted clock-drift window.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of periods accepted on either side of now.
	Skew int
}

// DefaultConfig matches common authenticator apps: six SHA1 digits every 30s, one step of drift.
func DefaultConfig() Config {
	return Config{Issuer: "deskauth", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1}
}

// Generator creates secrets and verifies codes.
type Generator struct {
	cfg Config
}

// New returns a Generator, filling zero fields from DefaultConfig.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	return &Generator{cfg: cfg}
}

// GenerateSecret returns a random base32 secret.
func (g *Generator) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return encoding.EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// URI consumed by authenticator apps.
func (g *Generator) ProvisionURI(secret, account string) string {
	label := url.PathEscape(g.cfg.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", g.cfg.Issuer)
	v.Set("period", strconv.Itoa(g.cfg.Period))
	v.Set("digits", strconv.Itoa(g.cfg.Digits))
	v.Set("algorithm", strings.ToUpper(g.cfg.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Verify checks code against the base32 secret within the skew window.
// A malformed code is a plain mismatch, not an error.
func (g *Generator) Verify(secret, code string, now time.Time) (bool, error) {
	ok, _, err := g.VerifyCode(secret, code, now)
	return ok, err
}

// VerifyCode is Verify that also returns the time-step counter the code
// matched, so callers can refuse a counter that was already used.
func (g *Generator) VerifyCode(secret, code string, now time.Time) (bool, int64, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return false, 0, err
	}
	return g.verifyKey(key, code, now)
}

// VerifyRaw is Verify for an already decoded key.
func (g *Generator) VerifyRaw(key []byte, code string, now time.Time) (bool, error) {
	ok, _, err := g.verifyKey(key, code, now)
	return ok, err
}

func (g *Generator) verifyKey(key []byte, code string, now time.Time) (bool, int64, error) {
	if len(key) == 0 {
		return false, 0, ErrEmptySecret
	}
	code = strings.TrimSpace(code)
	if len(code) != g.cfg.Digits || !numeric(code) {
		return false, 0, nil
	}

	base := now.Unix() / int64(g.cfg.Period)
	for step := -g.cfg.Skew; step <= g.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		want, err := hotp(key, counter, g.cfg.Digits, g.cfg.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// Code returns the code for secret at t.
func (g *Generator) Code(secret string, t time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	return hotp(key, t.Unix()/int64(g.cfg.Period), g.cfg.Digits, g.cfg.Algorithm)
}

func decodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	if s == "" {
		return nil, ErrEmptySecret
	}
	key, err := encoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return key, nil
}

func hotp(key []byte, counter int64, digits int, algorithm string) (string, error) {
	newHash, err := hashFor(algorithm)
	if err != nil {
		return "", err
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(newHash, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	off := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hashFor(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	}
	return nil, ErrUnsupportedAlgorithm
}

func numeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
