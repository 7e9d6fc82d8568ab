package deskauth

import (
	"log/slog"
	"strings"
	"time"
)

// SecurityReport summarises the security-relevant configuration of an engine.
// It carries no key material.
type SecurityReport struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	RefreshTokenBytes    int
	ResetTTL             time.Duration
	PasswordScheme       string
	BcryptCost           int
	MinPasswordLength    int
	TOTPDigits           int
	TOTPSkew             int
	BackupCodeCount      int
	MailerConfigured     bool
	RefreshReuseRevokes  bool
	PasswordUpgradeLogin bool
}

// SecurityReport describes the engine's effective settings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	scheme := e.config.Password.Scheme
	if scheme == "" {
		scheme = "bcrypt"
	}
	return SecurityReport{
		SigningAlgorithm:     strings.ToUpper(firstNonEmpty(e.config.JWT.SigningMethod, "hs256")),
		AccessTTL:            e.jwt.TTL(),
		RefreshTTL:           e.config.Refresh.TTL,
		RefreshTokenBytes:    e.config.Refresh.TokenBytes,
		ResetTTL:             e.config.Reset.TTL,
		PasswordScheme:       scheme,
		BcryptCost:           e.config.Password.BcryptCost,
		MinPasswordLength:    e.config.Password.MinLength,
		TOTPDigits:           e.config.TOTP.Digits,
		TOTPSkew:             e.config.TOTP.Skew,
		BackupCodeCount:      e.config.BackupCodes.Count,
		MailerConfigured:     e.mailer != nil,
		RefreshReuseRevokes:  true,
		PasswordUpgradeLogin: e.config.Password.UpgradeOnLogin,
	}
}

// LogValue renders the report as a slog group.
func (r SecurityReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("signing_algorithm", r.SigningAlgorithm),
		slog.Duration("access_ttl", r.AccessTTL),
		slog.Duration("refresh_ttl", r.RefreshTTL),
		slog.Int("refresh_token_bytes", r.RefreshTokenBytes),
		slog.Duration("reset_ttl", r.ResetTTL),
		slog.String("password_scheme", r.PasswordScheme),
		slog.Int("bcrypt_cost", r.BcryptCost),
		slog.Int("totp_skew", r.TOTPSkew),
		slog.Bool("mailer", r.MailerConfigured),
	)
}
