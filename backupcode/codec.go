package backupcode

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/deskauth/internal/secret"
)

// Alphabet omits characters that are easy to misread (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCount  = 10
	DefaultLength = 10
	DefaultCost   = 10
	hashedPrefix  = "$2"
)

var ErrInvalidLength = errors.New("backupcode: invalid code length")

// Codec hashes and verifies backup codes with bcrypt.
type Codec struct {
	cost int
}

// New returns a Codec using the given bcrypt cost. Non-positive cost uses DefaultCost.
func New(cost int) *Codec {
	if cost <= 0 {
		cost = DefaultCost
	}
	return &Codec{cost: cost}
}

// Generate returns count formatted codes of length characters each.
func Generate(count, length int) ([]string, error) {
	if length < 4 {
		return nil, ErrInvalidLength
	}
	codes := make([]string, 0, count)
	max := big.NewInt(int64(len(Alphabet)))
	for i := 0; i < count; i++ {
		var b strings.Builder
		b.Grow(length)
		for j := 0; j < length; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(Alphabet[n.Int64()])
		}
		codes = append(codes, Format(b.String()))
	}
	return codes, nil
}

// Format splits a canonical code in half with a dash.
func Format(code string) string {
	if len(code) < 2 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// Canonicalize upper-cases a code and strips dashes and whitespace.
func Canonicalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Hash bcrypt-hashes every code concurrently, preserving order.
func (c *Codec) Hash(codes []string) ([]string, error) {
	out := make([]string, len(codes))
	if len(codes) == 0 {
		return out, nil
	}
	var g errgroup.Group
	for i, code := range codes {
		g.Go(func() error {
			h, err := bcrypt.GenerateFromPassword([]byte(Canonicalize(code)), c.cost)
			if err != nil {
				return err
			}
			out[i] = string(h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify returns the index of the first hash matching input, or -1.
func (c *Codec) Verify(input string, hashed []string) int {
	candidate := []byte(Canonicalize(input))
	if len(candidate) == 0 {
		return -1
	}
	for i, h := range hashed {
		if bcrypt.CompareHashAndPassword([]byte(h), candidate) == nil {
			return i
		}
	}
	return -1
}

// VerifyLegacy matches input against a plaintext batch.
func VerifyLegacy(input string, plain []string) int {
	candidate := Canonicalize(input)
	if candidate == "" {
		return -1
	}
	for i, p := range plain {
		if secret.Equal(Canonicalize(p), candidate) {
			return i
		}
	}
	return -1
}

// IsHashed reports whether a stored batch holds bcrypt hashes.
// Empty and nil batches are not hashed.
func IsHashed(codes []string) bool {
	if len(codes) == 0 {
		return false
	}
	return strings.HasPrefix(codes[0], hashedPrefix)
}
