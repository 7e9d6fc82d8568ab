package flows

import (
	"context"
	"errors"
	"strings"
)

// LoginUser is the flow-local view of a user credential row.
type LoginUser struct {
	ID                string
	Username          string
	Email             string
	Role              string
	PasswordHash      string
	TOTPSecret        string
	TOTPEnabled       bool
	BackupCodes       []string
	// TOTPLastCounter is the time step of the last accepted TOTP code.
	TOTPLastCounter   int64
	CredentialVersion int64
}

// SecondFactorActive reports whether login must ask for a one-time code.
func (u *LoginUser) SecondFactorActive() bool {
	return u.TOTPEnabled && u.TOTPSecret != ""
}

// LoginFailureKind records which check rejected a login. Callers collapse every
// kind to one public error; the distinction is kept for logs and metrics.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureEmptyInput
	LoginFailureUnknownUser
	LoginFailurePassword
	LoginFailureSecondFactor
	LoginFailureTOTPReplay
)

func (k LoginFailureKind) String() string {
	switch k {
	case LoginFailureNone:
		return "none"
	case LoginFailureEmptyInput:
		return "empty_input"
	case LoginFailureUnknownUser:
		return "unknown_user"
	case LoginFailurePassword:
		return "password_mismatch"
	case LoginFailureSecondFactor:
		return "second_factor_mismatch"
	case LoginFailureTOTPReplay:
		return "totp_replay"
	default:
		return "unknown"
	}
}

// Second-factor methods reported in LoginResult.Method.
const (
	MethodPassword   = "password"
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// LoginResult is the outcome of RunLogin.
type LoginResult struct {
	User *LoginUser
	// RequiresSecondFactor is set when the password matched but no code was supplied.
	RequiresSecondFactor bool
	Failure              LoginFailureKind
	Method               string
	// BackupCodeIndex is the position of the consumed code, or -1.
	BackupCodeIndex int
}

// OK reports a fully authenticated login.
func (r LoginResult) OK() bool {
	return r.Failure == LoginFailureNone && !r.RequiresSecondFactor && r.User != nil
}

// LoginDeps captures the credential verifier dependencies.
type LoginDeps struct {
	FindActiveUser func(ctx context.Context, username string) (*LoginUser, error)
	IsNotFound     func(error) bool
	VerifyPassword func(password, encoded string) (bool, error)
	// VerifyTOTP reports a match and the time step it matched.
	VerifyTOTP func(secret, code string) (bool, int64, error)
	// ClaimTOTPCounter records counter as used for user and reports false if a
	// step at or after it was already accepted. Nil disables replay checks.
	ClaimTOTPCounter func(ctx context.Context, user *LoginUser, counter int64) (bool, error)
	// ConsumeBackupCode removes code from the user's batch and returns its index, or -1.
	ConsumeBackupCode func(ctx context.Context, user *LoginUser, code string) (int, error)
	// DummyHash is verified against when the user does not exist so both
	// branches cost one password hash.
	DummyHash string
}

var errLoginDepsMissing = errors.New("flows: login dependencies missing")

// RunLogin executes lookup, password check and the optional second factor.
// The returned error is reserved for storage and crypto failures.
func RunLogin(ctx context.Context, username, password, code string, deps LoginDeps) (LoginResult, error) {
	res := LoginResult{BackupCodeIndex: -1}
	if deps.FindActiveUser == nil || deps.VerifyPassword == nil || deps.VerifyTOTP == nil || deps.ConsumeBackupCode == nil {
		return res, errLoginDepsMissing
	}
	if deps.IsNotFound == nil {
		deps.IsNotFound = func(error) bool { return false }
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		res.Failure = LoginFailureEmptyInput
		return res, nil
	}

	user, err := deps.FindActiveUser(ctx, username)
	if err != nil && !deps.IsNotFound(err) {
		return res, err
	}
	if user == nil {
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		res.Failure = LoginFailureUnknownUser
		return res, nil
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Failure = LoginFailurePassword
		return res, nil
	}

	res.User = user
	res.Method = MethodPassword
	if !user.SecondFactorActive() {
		return res, nil
	}

	code = strings.TrimSpace(code)
	if code == "" {
		res.RequiresSecondFactor = true
		return res, nil
	}

	totpOK, counter, err := deps.VerifyTOTP(user.TOTPSecret, code)
	if err != nil {
		return res, err
	}
	if totpOK {
		if deps.ClaimTOTPCounter != nil {
			claimed := false
			if counter > user.TOTPLastCounter {
				if claimed, err = deps.ClaimTOTPCounter(ctx, user, counter); err != nil {
					return res, err
				}
			}
			if !claimed {
				res.Failure = LoginFailureTOTPReplay
				return res, nil
			}
		}
		res.Method = MethodTOTP
		return res, nil
	}

	idx, err := deps.ConsumeBackupCode(ctx, user, code)
	if err != nil {
		return res, err
	}
	if idx < 0 {
		res.Failure = LoginFailureSecondFactor
		return res, nil
	}
	res.Method = MethodBackupCode
	res.BackupCodeIndex = idx
	return res, nil
}
