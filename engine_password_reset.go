package deskauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
)

// RequestPasswordReset issues a reset token for the active account with email
// and hands it to the Mailer. Any earlier outstanding token of that user stops
// working.
//
// The call reports success for unknown addresses too; only storage failures
// surface as ErrInternal.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "deskauth.RequestPasswordReset"

	if err := e.ready(); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrInvalidInput
	}
	e.metrics.Inc(internalmetrics.PasswordResetRequest)

	u, err := e.users.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) || (err == nil && !u.Active) {
		e.log.DebugContext(ctx, "password reset for unknown email")
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", ErrUserNotFound, nil)
		return nil
	}
	if err != nil {
		return e.internal(ctx, op, err)
	}

	issued, err := e.resets.RequestReset(ctx, u.ID, u.Email, clientIPFromContext(ctx))
	if err != nil {
		return e.internal(ctx, op, err)
	}

	if e.mailer != nil {
		to := u.Email
		e.sideEffect("send_password_reset", func(ctx context.Context) error {
			return e.mailer.SendPasswordReset(ctx, to, issued.Token, issued.ExpiresAt)
		})
	} else {
		e.log.WarnContext(ctx, "no mailer configured, reset token not delivered", slog.String("user_id", u.ID))
	}
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, u.ID, nil, nil)
	return nil
}

// VerifyResetToken reports whether token can still be used.
func (e *Engine) VerifyResetToken(ctx context.Context, token string) (*ResetTokenInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	row, rejection, err := e.resets.Validate(ctx, token)
	if err != nil {
		return nil, e.internal(ctx, "deskauth.VerifyResetToken", err)
	}
	if row == nil {
		e.log.DebugContext(ctx, "reset token rejected", slog.String("reason", rejection.String()))
		return nil, ErrResetTokenInvalid
	}
	return &ResetTokenInfo{Email: row.Email, ExpiresAt: row.ExpiresAt}, nil
}

// ResetPassword sets newPassword for the owner of token and consumes the
// token. The password write and the consumption succeed or fail together.
// Every refresh token of the user is revoked afterwards.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	const op = "deskauth.ResetPassword"

	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return e.internal(ctx, op, err)
	}

	var userID string
	rejection, err := e.resets.Consume(ctx, token, func(ctx context.Context, row *reset.Token) error {
		userID = row.UserID
		return e.users.UpdatePasswordHash(ctx, row.UserID, hash)
	})
	if err != nil {
		e.metrics.Inc(internalmetrics.PasswordResetFailure)
		if errors.Is(err, ErrUserNotFound) {
			return ErrResetTokenInvalid
		}
		return e.internal(ctx, op, err)
	}
	if rejection != reset.Accepted {
		e.metrics.Inc(internalmetrics.PasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, "", ErrResetTokenInvalid, map[string]string{
			"reason": rejection.String(),
		})
		return ErrResetTokenInvalid
	}

	e.revokeEverywhere(ctx, userID, refresh.ReasonPasswordReset)
	e.metrics.Inc(internalmetrics.PasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, userID, nil, nil)
	return nil
}
