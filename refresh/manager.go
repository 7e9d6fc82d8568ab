package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/deskauth/internal/secret"
)

// DefaultTTL is the refresh-token lifetime when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// FailureKind classifies why a presented token was rejected.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNotFound
	FailureExpired
	FailureReuse
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not_found"
	case FailureExpired:
		return "expired"
	case FailureReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// Issued is a freshly minted refresh token. Token is the only copy of the secret.
type Issued struct {
	Token     string
	FamilyID  string
	ExpiresAt time.Time
}

// Rotation is the result of a successful exchange.
type Rotation struct {
	Issued
	UserID string
}

// Outcome reports a ValidateAndRotate call. Rotation is nil when the token was rejected.
type Outcome struct {
	Rotation *Rotation
	Failure  FailureKind
	// FamilyRevoked counts tokens revoked in response to reuse.
	FamilyRevoked int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the lifetime of newly issued tokens.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTokenBytes sets the entropy of generated tokens.
func WithTokenBytes(n int) Option {
	return func(m *Manager) {
		if n >= 32 {
			m.tokenBytes = n
		}
	}
}

// Manager issues, rotates and revokes refresh tokens.
type Manager struct {
	store      Store
	ttl        time.Duration
	tokenBytes int
	now        func() time.Time
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		ttl:        DefaultTTL,
		tokenBytes: secret.RefreshTokenBytes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue opens a new family for userID.
func (m *Manager) Issue(ctx context.Context, userID, deviceInfo, ipAddress string) (Issued, error) {
	const op = "refresh.Issue"

	now := m.now()
	raw, row, err := m.newToken(userID, uuid.NewString(), deviceInfo, ipAddress, now)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := m.store.InsertRefreshToken(ctx, row); err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}
	return Issued{Token: raw, FamilyID: row.FamilyID, ExpiresAt: row.ExpiresAt}, nil
}

// ValidateAndRotate exchanges presented for a new token in the same family.
// Rejections are reported through Outcome.Failure; the error is reserved for
// storage failures.
func (m *Manager) ValidateAndRotate(ctx context.Context, presented, deviceInfo, ipAddress string) (Outcome, error) {
	const op = "refresh.ValidateAndRotate"

	if presented == "" {
		return Outcome{Failure: FailureNotFound}, nil
	}

	now := m.now()
	current, err := m.store.FindRefreshTokenByHash(ctx, secret.HashOpaqueToken(presented))
	if errors.Is(err, ErrNotFound) {
		return Outcome{Failure: FailureNotFound}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}

	if current.Revoked {
		return m.revokeOnReuse(ctx, op, current.FamilyID, now)
	}
	if !now.Before(current.ExpiresAt) {
		return Outcome{Failure: FailureExpired}, nil
	}

	if deviceInfo == "" {
		deviceInfo = current.DeviceInfo
	}
	if ipAddress == "" {
		ipAddress = current.IPAddress
	}
	raw, next, err := m.newToken(current.UserID, current.FamilyID, deviceInfo, ipAddress, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}
	err = m.store.RotateRefreshToken(ctx, current.ID, next, now)
	if errors.Is(err, ErrConflict) {
		// Lost the race against another exchange of the same token.
		return m.revokeOnReuse(ctx, op, current.FamilyID, now)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", op, err)
	}

	return Outcome{Rotation: &Rotation{
		Issued: Issued{Token: raw, FamilyID: next.FamilyID, ExpiresAt: next.ExpiresAt},
		UserID: current.UserID,
	}}, nil
}

// EndSession revokes the family of presented when it belongs to userID and
// returns the number of tokens revoked. Unknown or foreign tokens revoke nothing.
func (m *Manager) EndSession(ctx context.Context, presented, userID, reason string) (int64, error) {
	const op = "refresh.EndSession"

	if presented == "" {
		return 0, nil
	}
	row, err := m.store.FindRefreshTokenByHash(ctx, secret.HashOpaqueToken(presented))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if row.UserID != userID {
		return 0, nil
	}
	n, err := m.store.RevokeRefreshFamily(ctx, row.FamilyID, reason, m.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// RevokeFamily revokes every active token of familyID.
func (m *Manager) RevokeFamily(ctx context.Context, familyID, reason string) (int64, error) {
	n, err := m.store.RevokeRefreshFamily(ctx, familyID, reason, m.now())
	if err != nil {
		return 0, fmt.Errorf("refresh.RevokeFamily: %w", err)
	}
	return n, nil
}

// RevokeAllForUser revokes every active token owned by userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	n, err := m.store.RevokeUserRefreshTokens(ctx, userID, reason, m.now())
	if err != nil {
		return 0, fmt.Errorf("refresh.RevokeAllForUser: %w", err)
	}
	return n, nil
}

// ListSessions returns one entry per active family of userID.
func (m *Manager) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	sessions, err := m.store.ListActiveSessions(ctx, userID, m.now())
	if err != nil {
		return nil, fmt.Errorf("refresh.ListSessions: %w", err)
	}
	return sessions, nil
}

func (m *Manager) revokeOnReuse(ctx context.Context, op, familyID string, now time.Time) (Outcome, error) {
	n, err := m.store.RevokeRefreshFamily(ctx, familyID, ReasonReuseDetected, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: revoke family: %w", op, err)
	}
	return Outcome{Failure: FailureReuse, FamilyRevoked: n}, nil
}

func (m *Manager) newToken(userID, familyID, deviceInfo, ipAddress string, now time.Time) (string, *Token, error) {
	raw, err := secret.GenerateSecureToken(m.tokenBytes)
	if err != nil {
		return "", nil, err
	}
	return raw, &Token{
		ID:         uuid.NewString(),
		TokenHash:  secret.HashOpaqueToken(raw),
		UserID:     userID,
		FamilyID:   familyID,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.ttl),
		LastUsedAt: now,
	}, nil
}
