package deskauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/password"
)

// Config is the complete engine configuration. Start from DefaultConfig.
type Config struct {
	JWT         JWTConfig
	Refresh     RefreshConfig
	Reset       ResetConfig
	TOTP        TOTPConfig
	BackupCodes BackupCodeConfig
	Password    PasswordConfig
	Account     AccountConfig
	Audit       AuditConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	// Expiry is a lifetime string ("15m", "1h", "7d") of at most one year.
	// Empty means one hour.
	Expiry        string
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh tokens.
type RefreshConfig struct {
	TTL        time.Duration
	TokenBytes int
}

/*
====================================
PASSWORD RESET CONFIG
====================================
*/

// ResetConfig configures password-reset tokens.
type ResetConfig struct {
	TTL time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures the second factor.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of periods accepted either side of the current one.
	Skew int
	// EnforceReplayProtection rejects a code whose time step was already used.
	EnforceReplayProtection bool
}

// BackupCodeConfig configures recovery codes.
type BackupCodeConfig struct {
	Count      int
	Length     int
	BcryptCost int
	// MaxWriteAttempts bounds optimistic retries when consuming a code.
	MaxWriteAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the password hashing scheme.
type PasswordConfig struct {
	// Scheme is "bcrypt" (default) or "argon2id". Hashes of the other scheme still verify.
	Scheme         string
	BcryptCost     int
	Argon2         password.Argon2Config
	MinLength      int
	UpgradeOnLogin bool
}

// AccountConfig configures registration.
type AccountConfig struct {
	DefaultRole string
}

// AuditConfig configures the side-effect dispatcher.
type AuditConfig struct {
	BufferSize  int
	TaskTimeout time.Duration
}

// DefaultConfig returns production defaults. JWT.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Expiry:        "1h",
			SigningMethod: "hs256",
			Issuer:        "deskauth",
		},
		Refresh: RefreshConfig{
			TTL:        7 * 24 * time.Hour,
			TokenBytes: 64,
		},
		Reset: ResetConfig{
			TTL: time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:                  "Service Desk",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
		},
		BackupCodes: BackupCodeConfig{
			Count:            10,
			Length:           10,
			BcryptCost:       10,
			MaxWriteAttempts: 3,
		},
		Password: PasswordConfig{
			Scheme:         "bcrypt",
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Account: AccountConfig{
			DefaultRole: "user",
		},
		Audit: AuditConfig{
			BufferSize:  1024,
			TaskTimeout: 10 * time.Second,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.JWT.SigningMethod) {
	case "", "hs256":
		if len(c.JWT.Secret) < 16 {
			return errors.New("JWT.Secret must be at least 16 bytes")
		}
	case "ed25519":
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("JWT.PublicKey is required for ed25519")
		}
	default:
		return errors.New("JWT.SigningMethod must be hs256 or ed25519")
	}
	if c.JWT.Expiry != "" && !jwt.ValidExpiry(c.JWT.Expiry) {
		return errors.New("JWT.Expiry must be a positive amount of s, m, h or d up to 365d")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh.TTL must be > 0")
	}
	if c.Refresh.TokenBytes < 32 {
		return errors.New("Refresh.TokenBytes must be >= 32")
	}
	if c.Reset.TTL <= 0 || c.Reset.TTL > 24*time.Hour {
		return errors.New("Reset.TTL must be within (0, 24h]")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP.Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP.Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 5 {
		return errors.New("TOTP.Skew must be within [0, 5]")
	}
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Count > 32 {
		return errors.New("BackupCodes.Count must be within [1, 32]")
	}
	if c.BackupCodes.Length < 8 {
		return errors.New("BackupCodes.Length must be >= 8")
	}
	switch c.Password.Scheme {
	case "", "bcrypt", "argon2id":
	default:
		return errors.New("Password.Scheme must be bcrypt or argon2id")
	}
	if c.Password.MinLength < 6 {
		return errors.New("Password.MinLength must be >= 6")
	}
	if strings.TrimSpace(c.Account.DefaultRole) == "" {
		return errors.New("Account.DefaultRole is required")
	}
	return nil
}

func cloneConfig(in Config) Config {
	out := in
	out.JWT.Secret = cloneBytes(in.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(in.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(in.JWT.PublicKey)
	return out
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
