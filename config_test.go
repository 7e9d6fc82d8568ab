package deskauth

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestDefaultConfigValidWithSecret(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = nil }, "JWT.Secret"},
		{"bad method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "SigningMethod"},
		{"ed25519 without key", func(c *Config) { c.JWT.SigningMethod = "ed25519" }, "PublicKey"},
		{"unparseable expiry", func(c *Config) { c.JWT.Expiry = "2w" }, "JWT.Expiry"},
		{"overflowing expiry", func(c *Config) { c.JWT.Expiry = "9999999999999999s" }, "JWT.Expiry"},
		{"short refresh tokens", func(c *Config) { c.Refresh.TokenBytes = 16 }, "TokenBytes"},
		{"long reset ttl", func(c *Config) { c.Reset.TTL = 48 * time.Hour }, "Reset.TTL"},
		{"digits", func(c *Config) { c.TOTP.Digits = 7 }, "Digits"},
		{"skew", func(c *Config) { c.TOTP.Skew = 10 }, "Skew"},
		{"codes", func(c *Config) { c.BackupCodes.Count = 0 }, "BackupCodes.Count"},
		{"scheme", func(c *Config) { c.Password.Scheme = "md5" }, "Scheme"},
		{"role", func(c *Config) { c.Account.DefaultRole = " " }, "DefaultRole"},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestCloneConfigCopiesKeys(t *testing.T) {
	cfg := validConfig()
	cloned := cloneConfig(cfg)
	cfg.JWT.Secret[0] = 'X'
	if cloned.JWT.Secret[0] == 'X' {
		t.Fatal("expected cloned secret to be independent")
	}
}
