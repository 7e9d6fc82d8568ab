package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	ErrInvalidToken = errors.New("jwt: invalid token")
	ErrMissingJTI   = errors.New("jwt: token has no jti")
)

// Config configures a Manager.
type Config struct {
	// Expiry is a lifetime string such as "1h", "30m" or "7d". See ParseExpiry.
	Expiry        string
	SigningMethod SigningMethod
	// Secret signs HS256 tokens. For Ed25519 use PrivateKey/PublicKey.
	Secret     []byte
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Subject is the identity stamped into an access token.
type Subject struct {
	UserID   string
	Username string
	Role     string
	Email    string
}

// Claims is the decoded payload of an access token.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly minted access token.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// Manager signs and verifies access tokens.
type Manager struct {
	cfg    Config
	ttl    time.Duration
	method jwt.SigningMethod
	sign   any
	verify any
	now    func() time.Time
}

// NewManager validates cfg and prepares signing keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be between 0 and 2m")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}

	m := &Manager{
		cfg: cfg,
		ttl: time.Duration(ParseExpiry(cfg.Expiry)) * time.Millisecond,
		now: time.Now,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.Secret) < 16 {
			return nil, errors.New("jwt: hs256 secret must be at least 16 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.sign, m.verify = cfg.Secret, cfg.Secret
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.verify = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.sign = priv
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}
	return m, nil
}

// WithClock replaces the manager's time source. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for s with a new jti.
func (m *Manager) Issue(s Subject) (Issued, error) {
	if m.sign == nil {
		return Issued{}, errors.New("jwt: manager has no signing key")
	}
	now := m.now()
	exp := now.Add(m.ttl)
	jti := uuid.NewString()

	claims := Claims{
		Username: s.Username,
		Role:     s.Role,
		Email:    s.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   s.UserID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.sign)
	if err != nil {
		return Issued{}, err
	}
	// NumericDate truncates to seconds; report what the client will see.
	return Issued{Token: signed, JTI: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Parse verifies signature, algorithm and expiry and returns the claims.
// Any failure is reported as ErrInvalidToken wrapping the cause.
func (m *Manager) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.cfg.Leeway))
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.verify, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" {
		return nil, ErrMissingJTI
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	k, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return k, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	if len(strings.TrimSpace(string(key))) == 0 {
		return nil, errors.New("jwt: ed25519 requires a public key")
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	k, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return k, nil
}
