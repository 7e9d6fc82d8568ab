// Package reset issues and consumes single-use password-reset tokens.
package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/deskauth/internal/secret"
)

// DefaultTTL is the lifetime of a reset token.
const DefaultTTL = time.Hour

var (
	// ErrNotFound is returned by stores when no token matches.
	ErrNotFound = errors.New("reset: token not found")
)

// Token is one row of password_reset_tokens. Only TokenHash is persisted.
type Token struct {
	ID        string
	TokenHash string
	UserID    string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    time.Time
	IPAddress string
}

// Store persists reset tokens.
type Store interface {
	// ReplaceResetToken marks every unused token of t.UserID used at
	// t.CreatedAt and inserts t, as one step. Concurrent calls for the same
	// user leave exactly one unused token.
	ReplaceResetToken(ctx context.Context, t *Token) (int64, error)
	FindResetTokenByHash(ctx context.Context, hash string) (*Token, error)
	// InvalidateResetTokens marks every unused token of userID used.
	InvalidateResetTokens(ctx context.Context, userID string, now time.Time) (int64, error)
	// ConsumeResetToken marks id used and runs apply in the same unit of work.
	// It returns false without calling apply if the token is already used or
	// expired at now. If apply fails the token stays unused.
	ConsumeResetToken(ctx context.Context, id string, now time.Time, apply func(ctx context.Context) error) (bool, error)
}

// Rejection classifies why a token failed validation.
type Rejection int

const (
	Accepted Rejection = iota
	RejectedNotFound
	RejectedUsed
	RejectedExpired
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedNotFound:
		return "not_found"
	case RejectedUsed:
		return "used"
	case RejectedExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Issued is a fresh reset token. Token is the only copy of the secret.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Manager drives the reset-token lifecycle.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager returns a Manager. Non-positive ttl uses DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}
}

// WithClock replaces time.Now. Intended for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// RequestReset supersedes every outstanding token of userID and issues a new one.
func (m *Manager) RequestReset(ctx context.Context, userID, email, ipAddress string) (Issued, error) {
	const op = "reset.RequestReset"

	now := m.now()
	raw, err := secret.GenerateSecureToken(secret.ResetTokenBytes)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}
	row := &Token{
		ID:        uuid.NewString(),
		TokenHash: secret.HashOpaqueToken(raw),
		UserID:    userID,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		IPAddress: ipAddress,
	}
	if _, err := m.store.ReplaceResetToken(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}
	return Issued{Token: raw, ExpiresAt: row.ExpiresAt}, nil
}

// Validate returns the token record, or nil with the rejection reason.
func (m *Manager) Validate(ctx context.Context, token string) (*Token, Rejection, error) {
	if token == "" {
		return nil, RejectedNotFound, nil
	}
	row, err := m.store.FindResetTokenByHash(ctx, secret.HashOpaqueToken(token))
	if errors.Is(err, ErrNotFound) {
		return nil, RejectedNotFound, nil
	}
	if err != nil {
		return nil, RejectedNotFound, fmt.Errorf("reset.Validate: %w", err)
	}
	if row.Used {
		return nil, RejectedUsed, nil
	}
	if !m.now().Before(row.ExpiresAt) {
		return nil, RejectedExpired, nil
	}
	return row, Accepted, nil
}

// Consume validates token and, if it is still usable, marks it used together
// with apply. apply receives the validated record.
func (m *Manager) Consume(ctx context.Context, token string, apply func(ctx context.Context, row *Token) error) (Rejection, error) {
	const op = "reset.Consume"

	row, rejection, err := m.Validate(ctx, token)
	if err != nil || row == nil {
		return rejection, err
	}
	ok, err := m.store.ConsumeResetToken(ctx, row.ID, m.now(), func(ctx context.Context) error {
		return apply(ctx, row)
	})
	if err != nil {
		return Accepted, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		// Consumed concurrently between Validate and the write.
		return RejectedUsed, nil
	}
	return Accepted, nil
}

// InvalidateAllForUser marks every outstanding token of userID used.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := m.store.InvalidateResetTokens(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("reset.InvalidateAllForUser: %w", err)
	}
	return n, nil
}
