package deskauth

import (
	"context"
	"log/slog"
	"time"

	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

// Authenticate verifies an access token's signature and expiry and rejects it
// when its jti is blacklisted. Routes outside this package must call it before
// trusting any claim.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { e.metrics.Observe(time.Since(start)) }()

	claims, err := e.jwt.Parse(token)
	if err != nil {
		e.metrics.Inc(internalmetrics.AuthenticateRejected)
		e.log.DebugContext(ctx, "access token rejected", slog.Any("error", err))
		return nil, ErrTokenInvalid
	}

	revoked, err := e.revocations.IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, e.internal(ctx, "deskauth.Authenticate", err)
	}
	if revoked {
		e.metrics.Inc(internalmetrics.BlacklistHit)
		e.metrics.Inc(internalmetrics.AuthenticateRejected)
		return nil, ErrTokenInvalid
	}

	e.metrics.Inc(internalmetrics.AuthenticateSuccess)
	id := &Identity{
		UserID:   claims.Subject,
		Username: claims.Username,
		Role:     claims.Role,
		Email:    claims.Email,
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
