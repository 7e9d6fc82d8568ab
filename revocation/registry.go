// Package revocation is the access-token blacklist.
//
// Access tokens are self-contained, so logging out cannot delete them. Instead
// their jti is recorded here until the token's own expiry, and every
// authenticated request checks [Registry.IsBlacklisted] before trusting claims.
package revocation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Reasons recorded on token_blacklist.reason.
const (
	ReasonLogout    = "logout"
	ReasonLogoutAll = "logout_all"
)

// Entry is one row of token_blacklist.
type Entry struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	Reason    string
	IPAddress string
	CreatedAt time.Time
}

// Store persists blacklist entries. AddRevokedToken must treat a duplicate jti
// as success and report inserted=false.
type Store interface {
	AddRevokedToken(ctx context.Context, e Entry) (inserted bool, err error)
	IsTokenRevoked(ctx context.Context, jti string, now time.Time) (bool, error)
	PurgeRevokedTokens(ctx context.Context, now time.Time) (int64, error)
}

// Registry wraps a Store with clock handling.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry returns a Registry over store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// WithClock replaces time.Now. Intended for tests.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Blacklist records jti until expiresAt. Calling it twice for the same jti is
// not an error. Tokens that have already expired are not recorded.
func (r *Registry) Blacklist(ctx context.Context, jti, userID string, expiresAt time.Time, reason, ipAddress string) error {
	const op = "revocation.Blacklist"

	if jti == "" {
		return fmt.Errorf("%s: empty jti", op)
	}
	now := r.now()
	if !expiresAt.After(now) {
		return nil
	}
	_, err := r.store.AddRevokedToken(ctx, Entry{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
		Reason:    reason,
		IPAddress: ipAddress,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsBlacklisted reports whether jti has been revoked and not yet purged.
func (r *Registry) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	ok, err := r.store.IsTokenRevoked(ctx, jti, r.now())
	if err != nil {
		return false, fmt.Errorf("revocation.IsBlacklisted: %w", err)
	}
	return ok, nil
}

// Purge deletes entries whose expiry has passed.
func (r *Registry) Purge(ctx context.Context) (int64, error) {
	n, err := r.store.PurgeRevokedTokens(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("revocation.Purge: %w", err)
	}
	return n, nil
}

// Janitor purges expired entries on an interval.
type Janitor struct {
	registry *Registry
	interval time.Duration
	log      *slog.Logger
}

// NewJanitor returns a Janitor. A nil logger discards output.
func NewJanitor(registry *Registry, interval time.Duration, log *slog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Janitor{registry: registry, interval: interval, log: log}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single purge and logs the result.
func (j *Janitor) RunOnce(ctx context.Context) {
	n, err := j.registry.Purge(ctx)
	if err != nil {
		j.log.Warn("blacklist purge failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		j.log.Info("blacklist purged", slog.Int64("removed", n))
	}
}
