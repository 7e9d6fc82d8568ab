package deskauth

import "errors"

var (
	// ErrInvalidCredentials is returned for an unknown user, an inactive user
	// or a wrong password. The three cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidSecondFactor is returned when neither the TOTP code nor any
	// backup code matches.
	ErrInvalidSecondFactor = errors.New("invalid second-factor token")
	// ErrAccountExists is returned by registration when the username or email is taken.
	ErrAccountExists = errors.New("username or email already exists")
	// ErrInvalidInput is returned for malformed registration or reset input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWeakPassword is returned when a new password fails the length policy.
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrTokenInvalid is returned by Authenticate for bad signatures, expiry or a blacklisted jti.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrRefreshInvalid is returned for unknown, expired or revoked refresh tokens.
	ErrRefreshInvalid = errors.New("invalid or expired refresh token")
	// ErrRefreshReuse is returned when a revoked refresh token was presented and
	// its family has been revoked as a result.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrResetTokenInvalid is returned for unknown, used or expired reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrSessionNotFound is returned when revoking a family the caller does not own.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTOTPNotConfigured is returned by 2FA verification before setup was started.
	ErrTOTPNotConfigured = errors.New("two-factor authentication is not configured")
	// ErrTOTPAlreadyEnabled is returned by setup when 2FA is already active.
	ErrTOTPAlreadyEnabled = errors.New("two-factor authentication is already enabled")
	// ErrTOTPNotEnabled is returned by backup-code regeneration when 2FA is off.
	ErrTOTPNotEnabled = errors.New("two-factor authentication is not enabled")

	// ErrInternal is the only storage or crypto failure callers ever see.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when the engine was not built through Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Errors a UserStore implementation must use.
var (
	// ErrUserNotFound means no user row matched.
	ErrUserNotFound = errors.New("user not found")
	// ErrCredentialConflict means the credential_version did not match on a guarded write.
	ErrCredentialConflict = errors.New("credential version conflict")
)
