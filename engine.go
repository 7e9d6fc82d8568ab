package deskauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/deskauth/backupcode"
	"github.com/MrEthical07/deskauth/internal/audit"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/password"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/revocation"
	"github.com/MrEthical07/deskauth/totp"
)

// Engine is the authentication core. Build one with New().…Build().
//
// Engine is safe for concurrent use. All state lives in the configured stores.
type Engine struct {
	config      Config
	users       UserStore
	mailer      Mailer
	log         *slog.Logger
	now         func() time.Time
	hasher      *password.Multi
	dummyHash   string
	jwt         *jwt.Manager
	totp        *totp.Generator
	codes       *backupcode.Codec
	refresh     *refresh.Manager
	revocations *revocation.Registry
	resets      *reset.Manager
	dispatcher  *audit.Dispatcher
	metrics     *internalmetrics.Metrics
}

// Close drains queued side effects and stops the dispatcher.
func (e *Engine) Close() {
	if e == nil || e.dispatcher == nil {
		return
	}
	e.dispatcher.Close()
}

// AuditDropped reports audit events and side effects dropped because the queue was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// SideEffectFailures reports queued side effects that returned an error or panicked.
func (e *Engine) SideEffectFailures() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Failed()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration with key material removed.
func (e *Engine) Config() Config {
	cfg := cloneConfig(e.config)
	cfg.JWT.Secret = nil
	cfg.JWT.PrivateKey = nil
	return cfg
}

func (e *Engine) ready() error {
	if e == nil || e.users == nil || e.jwt == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	return nil
}

// internal logs err with op and returns the generic error callers are allowed to see.
func (e *Engine) internal(ctx context.Context, op string, err error) error {
	e.log.ErrorContext(ctx, "auth operation failed", slog.String("op", op), slog.Any("error", err))
	return ErrInternal
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, reason error, meta map[string]string) {
	event := audit.Event{
		Timestamp: e.now().UTC(),
		Type:      eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  meta,
	}
	if reason != nil {
		event.Reason = reason.Error()
	}
	e.dispatcher.Emit(event)
}

// sideEffect queues task off the request path. Failures are logged by the dispatcher.
func (e *Engine) sideEffect(name string, task func(ctx context.Context) error) {
	e.dispatcher.Go(name, task)
}

func (e *Engine) findUser(ctx context.Context, userID string) (*User, error) {
	u, err := e.users.FindUserByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// issueTokens mints an access token and opens a refresh family for u.
func (e *Engine) issueTokens(ctx context.Context, u *User, deviceInfo, ipAddress string) (*TokenPair, error) {
	access, err := e.jwt.Issue(jwt.Subject{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Email:    u.Email,
	})
	if err != nil {
		return nil, err
	}
	rt, err := e.refresh.Issue(ctx, u.ID, deviceInfo, ipAddress)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access.Token,
		AccessJTI:        access.JTI,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rt.Token,
		RefreshExpiresAt: rt.ExpiresAt,
		FamilyID:         rt.FamilyID,
		User:             u.Summary(),
	}, nil
}
