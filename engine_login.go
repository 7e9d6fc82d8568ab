package deskauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/MrEthical07/deskauth/backupcode"
	internalflows "github.com/MrEthical07/deskauth/internal/flows"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

// Login verifies username and password and, when 2FA is enabled, the TOTP or
// backup code in req.TOTPCode.
//
// Without a code for a 2FA account Login returns RequiresTwoFactor and no tokens.
// Every credential failure is ErrInvalidCredentials or ErrInvalidSecondFactor.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	const op = "deskauth.Login"

	if err := e.ready(); err != nil {
		return nil, err
	}
	ip := firstNonEmpty(req.IPAddress, clientIPFromContext(ctx))
	device := firstNonEmpty(req.DeviceInfo, userAgentFromContext(ctx))
	ctx = WithClientIP(ctx, ip)

	// found keeps the full row; the flow only sees the credential columns.
	var found *User
	deps := internalflows.LoginDeps{
		FindActiveUser: func(ctx context.Context, username string) (*internalflows.LoginUser, error) {
			u, err := e.users.FindActiveUserByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if !u.Active {
				return nil, nil
			}
			found = u
			return toLoginUser(u), nil
		},
		IsNotFound:     func(err error) bool { return errors.Is(err, ErrUserNotFound) },
		VerifyPassword: e.hasher.Verify,
		VerifyTOTP: func(secret, code string) (bool, int64, error) {
			return e.totp.VerifyCode(secret, code, e.now())
		},
		ConsumeBackupCode: e.consumeBackupCode,
		DummyHash:         e.dummyHash,
	}

	if e.config.TOTP.EnforceReplayProtection {
		deps.ClaimTOTPCounter = e.claimTOTPCounter
	}

	res, err := internalflows.RunLogin(ctx, req.Username, req.Password, req.TOTPCode, deps)
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}

	switch res.Failure {
	case internalflows.LoginFailureNone:
	case internalflows.LoginFailureSecondFactor, internalflows.LoginFailureTOTPReplay:
		e.metrics.Inc(internalmetrics.SecondFactorFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.ID, ErrInvalidSecondFactor, map[string]string{
			"reason": res.Failure.String(),
		})
		return nil, ErrInvalidSecondFactor
	default:
		e.metrics.Inc(internalmetrics.LoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, map[string]string{
			"reason": res.Failure.String(),
		})
		return nil, ErrInvalidCredentials
	}

	if res.RequiresSecondFactor {
		e.metrics.Inc(internalmetrics.LoginSecondFactorRequired)
		e.emitAudit(ctx, auditEventLoginSecondFactor, true, res.User.ID, nil, nil)
		return &LoginResult{RequiresTwoFactor: true}, nil
	}

	switch res.Method {
	case internalflows.MethodTOTP:
		e.metrics.Inc(internalmetrics.TOTPSuccess)
	case internalflows.MethodBackupCode:
		e.metrics.Inc(internalmetrics.BackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, found.ID, nil, map[string]string{
			"remaining": strconv.Itoa(len(res.User.BackupCodes)),
		})
	}

	userID := found.ID
	at := e.now()
	e.sideEffect("record_login", func(ctx context.Context) error {
		return e.users.RecordLogin(ctx, userID, at)
	})
	e.maybeUpgradePassword(found, req.Password)

	pair, err := e.issueTokens(ctx, found, device, ip)
	if err != nil {
		return nil, e.internal(ctx, op, err)
	}

	e.metrics.Inc(internalmetrics.LoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, nil, map[string]string{
		"method":    res.Method,
		"family_id": pair.FamilyID,
	})
	return &LoginResult{
		Tokens:         pair,
		UsedBackupCode: res.Method == internalflows.MethodBackupCode,
	}, nil
}

// consumeBackupCode removes code from user's batch under the credential_version guard.
func (e *Engine) consumeBackupCode(ctx context.Context, user *internalflows.LoginUser, code string) (int, error) {
	// Legacy plaintext batches are still accepted; the first successful use
	// rewrites the remaining codes as bcrypt hashes.
	legacy := len(user.BackupCodes) > 0 && !backupcode.IsHashed(user.BackupCodes)

	idx, err := internalflows.RunConsumeBackupCode(ctx, user, code, internalflows.BackupCodeDeps{
		ReloadUser: func(ctx context.Context, userID string) (*internalflows.LoginUser, error) {
			u, err := e.users.FindUserByID(ctx, userID)
			if err != nil {
				return nil, err
			}
			return toLoginUser(u), nil
		},
		IsHashed:          backupcode.IsHashed,
		VerifyHashed:      e.codes.Verify,
		VerifyLegacy:      backupcode.VerifyLegacy,
		HashCodes:         e.codes.Hash,
		WriteCodes:        e.users.ReplaceBackupCodes,
		IsVersionConflict: func(err error) bool { return errors.Is(err, ErrCredentialConflict) },
		MaxAttempts:       e.config.BackupCodes.MaxWriteAttempts,
	})
	if err != nil {
		return -1, err
	}
	if idx >= 0 && legacy {
		e.metrics.Inc(internalmetrics.BackupCodeMigrated)
		e.log.InfoContext(ctx, "legacy backup codes migrated", slog.String("user_id", user.ID))
	}
	return idx, nil
}

// claimTOTPCounter advances the user's last TOTP step to counter. A concurrent
// credential write forces a reload; the claim is lost once the stored step
// reaches counter.
func (e *Engine) claimTOTPCounter(ctx context.Context, user *internalflows.LoginUser, counter int64) (bool, error) {
	attempts := e.config.BackupCodes.MaxWriteAttempts
	if attempts <= 0 {
		attempts = 1
	}
	current := user
	for i := 0; i < attempts; i++ {
		if current.TOTPLastCounter >= counter {
			return false, nil
		}
		err := e.users.ClaimTOTPCounter(ctx, user.ID, current.CredentialVersion, counter)
		if err == nil {
			user.TOTPLastCounter = counter
			user.CredentialVersion = current.CredentialVersion + 1
			return true, nil
		}
		if !errors.Is(err, ErrCredentialConflict) {
			return false, err
		}
		u, err := e.users.FindUserByID(ctx, user.ID)
		if err != nil {
			return false, err
		}
		current = toLoginUser(u)
	}
	return false, fmt.Errorf("totp counter for %s: %w", user.ID, ErrCredentialConflict)
}

// maybeUpgradePassword rehashes password with the primary scheme off the request path.
func (e *Engine) maybeUpgradePassword(u *User, password string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	stale, err := e.hasher.NeedsUpgrade(u.PasswordHash)
	if err != nil || !stale {
		return
	}
	userID, oldHash := u.ID, u.PasswordHash
	e.sideEffect("password_upgrade", func(ctx context.Context) error {
		hash, err := e.hasher.Hash(password)
		if err != nil {
			return err
		}
		// A reset that committed after this login must win.
		upgraded, err := e.users.UpgradePasswordHash(ctx, userID, oldHash, hash)
		if err != nil {
			return err
		}
		if !upgraded {
			e.log.DebugContext(ctx, "password upgrade skipped, hash changed", slog.String("user_id", userID))
		}
		return nil
	})
}

func toLoginUser(u *User) *internalflows.LoginUser {
	codes := make([]string, len(u.BackupCodes))
	copy(codes, u.BackupCodes)
	return &internalflows.LoginUser{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		Role:              u.Role,
		PasswordHash:      u.PasswordHash,
		TOTPSecret:        u.TOTPSecret,
		TOTPEnabled:       u.TOTPEnabled,
		BackupCodes:       codes,
		TOTPLastCounter:   u.TOTPLastCounter,
		CredentialVersion: u.CredentialVersion,
	}
}
