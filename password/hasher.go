package password

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownScheme is returned when no hasher recognises a stored hash.
	ErrUnknownScheme = errors.New("password: unknown hash scheme")
	// ErrMalformedHash is returned for hashes that match a scheme prefix but fail to parse.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// Hasher hashes and verifies passwords for a single scheme.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
	Recognizes(encoded string) bool
}

// Multi hashes with Primary and verifies with whichever hasher recognises the stored value.
type Multi struct {
	Primary Hasher
	Legacy  []Hasher
}

// NewMulti returns a Multi hashing with primary and also accepting legacy hashes.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	return &Multi{Primary: primary, Legacy: legacy}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m *Multi) Verify(password, encoded string) (bool, error) {
	h := m.pick(encoded)
	if h == nil {
		return false, ErrUnknownScheme
	}
	return h.Verify(password, encoded)
}

// NeedsUpgrade is true for hashes from a legacy scheme or with outdated primary parameters.
func (m *Multi) NeedsUpgrade(encoded string) (bool, error) {
	if m.Primary.Recognizes(encoded) {
		return m.Primary.NeedsUpgrade(encoded)
	}
	if m.pick(encoded) == nil {
		return false, ErrUnknownScheme
	}
	return true, nil
}

func (m *Multi) Recognizes(encoded string) bool {
	return m.pick(encoded) != nil
}

func (m *Multi) pick(encoded string) Hasher {
	if m.Primary.Recognizes(encoded) {
		return m.Primary
	}
	for _, h := range m.Legacy {
		if h.Recognizes(encoded) {
			return h
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
