package deskauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/deskauth/backupcode"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

// SetupTOTP starts 2FA enrolment for userID. The secret is stored with 2FA
// still disabled until VerifyTOTPSetup confirms a code from it. Calling it
// again before confirmation replaces the pending secret.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	const op = "deskauth.SetupTOTP"

	if err := e.ready(); err != nil {
		return nil, err
	}
	secret, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}

	var account string
	err = e.writeSecondFactor(ctx, userID, func(u *User) (SecondFactor, error) {
		if u.TOTPEnabled {
			return SecondFactor{}, ErrTOTPAlreadyEnabled
		}
		account = firstNonEmpty(u.Email, u.Username)
		return SecondFactor{Secret: secret}, nil
	})
	if err != nil {
		return nil, e.secondFactorError(ctx, op, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetup, true, userID, nil, nil)
	return &TOTPSetup{Secret: secret, URI: e.totp.ProvisionURI(secret, account)}, nil
}

// VerifyTOTPSetup confirms enrolment with a code generated from the pending
// secret, enables 2FA and returns a fresh batch of backup codes. The codes are
// stored hashed and are never retrievable again.
func (e *Engine) VerifyTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	const op = "deskauth.VerifyTOTPSetup"

	if err := e.ready(); err != nil {
		return nil, err
	}

	var plain, hashed []string
	err := e.writeSecondFactor(ctx, userID, func(u *User) (SecondFactor, error) {
		if u.TOTPEnabled {
			return SecondFactor{}, ErrTOTPAlreadyEnabled
		}
		if u.TOTPSecret == "" {
			return SecondFactor{}, ErrTOTPNotConfigured
		}
		ok, counter, err := e.totp.VerifyCode(u.TOTPSecret, code, e.now())
		if err != nil {
			return SecondFactor{}, err
		}
		if !ok {
			return SecondFactor{}, ErrInvalidSecondFactor
		}
		if hashed == nil {
			if plain, hashed, err = e.newBackupCodes(); err != nil {
				return SecondFactor{}, err
			}
		}
		// The enrolment code counts as used.
		return SecondFactor{Secret: u.TOTPSecret, Enabled: true, BackupCodes: hashed, LastCounter: counter}, nil
	})
	if err != nil {
		return nil, e.secondFactorError(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.TOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, nil, nil)
	return plain, nil
}

// DisableTOTP clears the secret, the enabled flag and every backup code of
// userID after re-checking password.
func (e *Engine) DisableTOTP(ctx context.Context, userID, password string) error {
	const op = "deskauth.DisableTOTP"

	if err := e.ready(); err != nil {
		return err
	}
	err := e.writeSecondFactor(ctx, userID, func(u *User) (SecondFactor, error) {
		if err := e.checkPassword(u, password); err != nil {
			return SecondFactor{}, err
		}
		if !u.TOTPEnabled && u.TOTPSecret == "" {
			return SecondFactor{}, ErrTOTPNotEnabled
		}
		return SecondFactor{}, nil
	})
	if err != nil {
		return e.secondFactorError(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.TOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, userID, nil, nil)
	return nil
}

// RegenerateBackupCodes replaces every backup code of userID after re-checking
// password and returns the new batch.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, password string) ([]string, error) {
	const op = "deskauth.RegenerateBackupCodes"

	if err := e.ready(); err != nil {
		return nil, err
	}

	var plain, hashed []string
	err := e.writeSecondFactor(ctx, userID, func(u *User) (SecondFactor, error) {
		if err := e.checkPassword(u, password); err != nil {
			return SecondFactor{}, err
		}
		if !u.TOTPEnabled || u.TOTPSecret == "" {
			return SecondFactor{}, ErrTOTPNotEnabled
		}
		if hashed == nil {
			var err error
			if plain, hashed, err = e.newBackupCodes(); err != nil {
				return SecondFactor{}, err
			}
		}
		return SecondFactor{
			Secret:      u.TOTPSecret,
			Enabled:     true,
			BackupCodes: hashed,
			LastCounter: u.TOTPLastCounter,
		}, nil
	})
	if err != nil {
		return nil, e.secondFactorError(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.BackupCodesRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesRegen, true, userID, nil, nil)
	return plain, nil
}

// writeSecondFactor loads userID, lets mutate derive the new 2FA columns and
// writes them guarded by credential_version, reloading on conflict.
func (e *Engine) writeSecondFactor(ctx context.Context, userID string, mutate func(u *User) (SecondFactor, error)) error {
	attempts := e.config.BackupCodes.MaxWriteAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		u, err := e.findUser(ctx, userID)
		if err != nil {
			return err
		}
		if !u.Active {
			return ErrUserNotFound
		}
		next, err := mutate(u)
		if err != nil {
			return err
		}
		err = e.users.UpdateSecondFactor(ctx, userID, u.CredentialVersion, next)
		if !errors.Is(err, ErrCredentialConflict) {
			return err
		}
	}
	return fmt.Errorf("second factor update for %s: %w", userID, ErrCredentialConflict)
}

// secondFactorError passes caller-facing sentinels through and hides the rest.
func (e *Engine) secondFactorError(ctx context.Context, op string, err error) error {
	for _, sentinel := range []error{
		ErrTOTPAlreadyEnabled,
		ErrTOTPNotConfigured,
		ErrTOTPNotEnabled,
		ErrInvalidSecondFactor,
		ErrInvalidCredentials,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	if errors.Is(err, ErrUserNotFound) {
		return ErrTokenInvalid
	}
	return e.internal(ctx, op, err)
}

func (e *Engine) checkPassword(u *User, password string) error {
	ok, err := e.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// newBackupCodes returns a formatted batch and its hashes.
func (e *Engine) newBackupCodes() ([]string, []string, error) {
	plain, err := backupcode.Generate(e.config.BackupCodes.Count, e.config.BackupCodes.Length)
	if err != nil {
		return nil, nil, err
	}
	hashed, err := e.codes.Hash(plain)
	if err != nil {
		return nil, nil, err
	}
	return plain, hashed, nil
}
