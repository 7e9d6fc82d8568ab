package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when no token matches.
	ErrNotFound = errors.New("refresh: token not found")
	// ErrConflict is returned by Store.Rotate when the old token was revoked or
	// expired between lookup and write.
	ErrConflict = errors.New("refresh: token no longer active")
)

// Revocation reasons recorded on refresh_tokens.revoked_reason.
const (
	ReasonRotated       = "rotated"
	ReasonReuseDetected = "reuse_detected"
	ReasonLogout        = "logout"
	ReasonLogoutAll     = "logout_all"
	ReasonPasswordReset = "password_reset"
	ReasonUserRevoked   = "user_revoked"
)

// Token is one row of refresh_tokens.
type Token struct {
	ID            string
	TokenHash     string
	UserID        string
	FamilyID      string
	DeviceInfo    string
	IPAddress     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	LastUsedAt    time.Time
	Revoked       bool
	RevokedAt     time.Time
	RevokedReason string
	ReplacedBy    string
}

// Active reports whether the token can still be exchanged at now.
func (t *Token) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Session summarises the live head of one family.
type Session struct {
	FamilyID   string
	DeviceInfo string
	IPAddress  string
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// Store persists refresh tokens.
type Store interface {
	InsertRefreshToken(ctx context.Context, t *Token) error
	FindRefreshTokenByHash(ctx context.Context, hash string) (*Token, error)
	// RotateRefreshToken inserts next and revokes oldID with ReasonRotated
	// atomically. It returns ErrConflict if oldID is not active at now.
	RotateRefreshToken(ctx context.Context, oldID string, next *Token, now time.Time) error
	RevokeRefreshFamily(ctx context.Context, familyID, reason string, now time.Time) (int64, error)
	RevokeUserRefreshTokens(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]Session, error)
}
