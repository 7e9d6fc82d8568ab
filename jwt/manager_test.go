package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newHS(t *testing.T, expiry string) *Manager {
	t.Helper()
	m, err := NewManager(Config{Expiry: expiry, Secret: testSecret, Issuer: "deskauth"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestIssueCarriesIdentityClaims(t *testing.T) {
	m := newHS(t, "1h")
	issued, err := m.Issue(Subject{UserID: "u-1", Username: "admin", Role: "admin", Email: "admin@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(issued.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u-1" || claims.Username != "admin" || claims.Role != "admin" || claims.Email != "admin@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID != issued.JTI {
		t.Fatalf("jti mismatch: %s vs %s", claims.ID, issued.JTI)
	}
	if !claims.ExpiresAt.Time.Equal(issued.ExpiresAt) {
		t.Fatalf("expiry mismatch: %v vs %v", claims.ExpiresAt.Time, issued.ExpiresAt)
	}
}

func TestIssueUniqueJTI(t *testing.T) {
	m := newHS(t, "15m")
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		issued, err := m.Issue(Subject{UserID: "u-1", Role: "user"})
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if seen[issued.JTI] {
			t.Fatalf("duplicate jti %s", issued.JTI)
		}
		seen[issued.JTI] = true
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := newHS(t, "1m")
	base := time.Now()
	m.WithClock(func() time.Time { return base })
	issued, err := m.Issue(Subject{UserID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.WithClock(func() time.Time { return base.Add(2 * time.Minute) })
	if _, err := m.Parse(issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	m := newHS(t, "1h")
	other, err := NewManager(Config{Secret: []byte("another-secret-another-secret"), Issuer: "deskauth"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	issued, err := other.Issue(Subject{UserID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(issued.Token); err == nil {
		t.Fatal("expected signature mismatch to be rejected")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newHS(t, "1h")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := Claims{RegisteredClaims: gjwt.RegisteredClaims{
		ID:        "jti",
		Issuer:    "deskauth",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Expiry: "30m"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	issued, err := m.Issue(Subject{UserID: "u-2", Role: "agent"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Parse(issued.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "agent" {
		t.Fatalf("unexpected role %s", claims.Role)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestParseExpiry(t *testing.T) {
	cases := map[string]int64{
		"1h":   3_600_000,
		"30m":  1_800_000,
		"7d":   604_800_000,
		"45s":  45_000,
		" 2H ": 7_200_000,
		"":     DefaultExpiryMillis,
		"10w":  DefaultExpiryMillis,
		"h":    DefaultExpiryMillis,
		"-5m":  DefaultExpiryMillis,
		"0s":   DefaultExpiryMillis,
		"abc":  DefaultExpiryMillis,
		"365d": MaxExpiryMillis,

		"366d":                 DefaultExpiryMillis,
		"110000d":              DefaultExpiryMillis,
		"9999999999999999s":    DefaultExpiryMillis,
		"9223372036854775807h": DefaultExpiryMillis,
	}
	for in, want := range cases {
		if got := ParseExpiry(in); got != want {
			t.Fatalf("ParseExpiry(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestValidExpiry(t *testing.T) {
	for _, in := range []string{"15m", "1h", "7d", "365d"} {
		if !ValidExpiry(in) {
			t.Fatalf("ValidExpiry(%q) = false", in)
		}
	}
	for _, in := range []string{"", "1w", "0h", "366d", "9999999999999999s"} {
		if ValidExpiry(in) {
			t.Fatalf("ValidExpiry(%q) = true", in)
		}
	}
}

func TestHugeExpiryFallsBackToDefault(t *testing.T) {
	m := newHS(t, "9999999999999999s")
	if got, want := m.TTL(), time.Duration(DefaultExpiryMillis)*time.Millisecond; got != want {
		t.Fatalf("TTL = %v, want %v", got, want)
	}
}
