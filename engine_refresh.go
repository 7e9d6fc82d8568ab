package deskauth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
	"github.com/MrEthical07/deskauth/jwt"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/revocation"
)

// Refresh exchanges refreshToken for a new token pair in the same family.
//
// Unknown, expired and revoked tokens fail with ErrRefreshInvalid. Presenting a
// token that was already rotated revokes its whole family and fails with
// ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken, deviceInfo, ipAddress string) (*TokenPair, error) {
	const op = "deskauth.Refresh"

	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := firstNonEmpty(ipAddress, clientIPFromContext(ctx))
	device := firstNonEmpty(deviceInfo, userAgentFromContext(ctx))
	ctx = WithClientIP(ctx, ip)

	out, err := e.refresh.ValidateAndRotate(ctx, refreshToken, device, ip)
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}
	switch out.Failure {
	case refresh.FailureNone:
	case refresh.FailureReuse:
		e.metrics.Inc(internalmetrics.RefreshReuseDetected)
		e.log.WarnContext(ctx, "refresh token reuse detected",
			slog.String("ip", ip),
			slog.Int64("revoked", out.FamilyRevoked),
		)
		e.emitAudit(ctx, auditEventRefreshReuse, false, "", ErrRefreshReuse, map[string]string{
			"revoked": strconv.FormatInt(out.FamilyRevoked, 10),
		})
		return nil, ErrRefreshReuse
	default:
		e.metrics.Inc(internalmetrics.RefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, false, "", ErrRefreshInvalid, map[string]string{
			"reason": out.Failure.String(),
		})
		return nil, ErrRefreshInvalid
	}

	rot := out.Rotation
	u, err := e.findUser(ctx, rot.UserID)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, e.internal(ctx, op, err)
	}
	if u == nil || !u.Active {
		if _, err := e.refresh.RevokeFamily(ctx, rot.FamilyID, refresh.ReasonUserRevoked); err != nil {
			return nil, e.internal(ctx, op, err)
		}
		e.metrics.Inc(internalmetrics.RefreshFailure)
		return nil, ErrRefreshInvalid
	}

	access, err := e.jwt.Issue(jwt.Subject{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		Email:    u.Email,
	})
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.RefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, true, u.ID, nil, map[string]string{"family_id": rot.FamilyID})
	return &TokenPair{
		AccessToken:      access.Token,
		AccessJTI:        access.JTI,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rot.Token,
		RefreshExpiresAt: rot.ExpiresAt,
		FamilyID:         rot.FamilyID,
		User:             u.Summary(),
	}, nil
}

// Logout blacklists the access token identified by req.JTI until its expiry.
// With AllDevices every refresh token of req.UserID is revoked; otherwise the
// family of req.RefreshToken, if given and owned by req.UserID, is revoked.
//
// Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	const op = "deskauth.Logout"

	if err := e.ready(); err != nil {
		return err
	}
	if req.UserID == "" {
		return ErrInvalidInput
	}
	ip := firstNonEmpty(req.IPAddress, clientIPFromContext(ctx))
	ctx = WithClientIP(ctx, ip)

	reason := revocation.ReasonLogout
	if req.AllDevices {
		reason = revocation.ReasonLogoutAll
	}
	if req.JTI != "" {
		if err := e.revocations.Blacklist(ctx, req.JTI, req.UserID, req.ExpiresAt, reason, ip); err != nil {
			return e.internal(ctx, op, err)
		}
	}

	var (
		revoked int64
		err     error
	)
	if req.AllDevices {
		revoked, err = e.refresh.RevokeAllForUser(ctx, req.UserID, refresh.ReasonLogoutAll)
		e.metrics.Inc(internalmetrics.LogoutAll)
	} else {
		revoked, err = e.refresh.EndSession(ctx, req.RefreshToken, req.UserID, refresh.ReasonLogout)
		e.metrics.Inc(internalmetrics.Logout)
	}
	if err != nil {
		return e.internal(ctx, op, err)
	}

	e.emitAudit(ctx, auditEventLogout, true, req.UserID, nil, map[string]string{
		"all_devices": strconv.FormatBool(req.AllDevices),
		"revoked":     strconv.FormatInt(revoked, 10),
	})
	return nil
}

// IsBlacklisted reports whether the access token jti was revoked.
func (e *Engine) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ok, err := e.revocations.IsBlacklisted(ctx, jti)
	if err != nil {
		return false, e.internal(ctx, "deskauth.IsBlacklisted", err)
	}
	return ok, nil
}

// PurgeBlacklist deletes blacklist entries whose token has expired.
func (e *Engine) PurgeBlacklist(ctx context.Context) (int64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.revocations.Purge(ctx)
}

// ListSessions returns the active refresh families of userID.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	sessions, err := e.refresh.ListSessions(ctx, userID)
	if err != nil {
		return nil, e.internal(ctx, "deskauth.ListSessions", err)
	}
	return sessions, nil
}

// RevokeSession ends one refresh family of userID. Families owned by other
// users are reported as ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, userID, familyID string) error {
	const op = "deskauth.RevokeSession"

	if err := e.ready(); err != nil {
		return err
	}
	sessions, err := e.refresh.ListSessions(ctx, userID)
	if err != nil {
		return e.internal(ctx, op, err)
	}
	owned := false
	for _, s := range sessions {
		if s.FamilyID == familyID {
			owned = true
			break
		}
	}
	if !owned {
		return ErrSessionNotFound
	}
	if _, err := e.refresh.RevokeFamily(ctx, familyID, refresh.ReasonUserRevoked); err != nil {
		return e.internal(ctx, op, err)
	}
	e.metrics.Inc(internalmetrics.SessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, nil, map[string]string{"family_id": familyID})
	return nil
}

// Me returns the current summary of userID.
func (e *Engine) Me(ctx context.Context, userID string) (*UserSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	u, err := e.findUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) || (err == nil && !u.Active) {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, e.internal(ctx, "deskauth.Me", err)
	}
	s := u.Summary()
	return &s, nil
}

// revokeEverywhere ends every session of userID after a credential change.
func (e *Engine) revokeEverywhere(ctx context.Context, userID, reason string) {
	n, err := e.refresh.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		e.log.WarnContext(ctx, "revoke sessions failed",
			slog.String("user_id", userID),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		return
	}
	e.log.InfoContext(ctx, "sessions revoked",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int64("count", n),
	)
}

