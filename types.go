package deskauth

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/revocation"
)

// User is one row of the users table.
//
// TOTPEnabled=true implies TOTPSecret is set. A secret with TOTPEnabled=false
// is an enrolment that was started but never confirmed.
type User struct {
	ID           string
	Username     string
	Email        string
	Role         string
	FirstName    string
	LastName     string
	PasswordHash string
	TOTPSecret   string
	TOTPEnabled  bool
	// TOTPLastCounter is the time step of the last accepted TOTP code.
	TOTPLastCounter int64
	// BackupCodes holds bcrypt hashes, or plaintext codes for legacy batches.
	BackupCodes []string
	Active      bool
	// CredentialVersion increments on every second-factor write.
	CredentialVersion int64
	LastLoginAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Summary returns the public projection of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		TOTPEnabled: u.TOTPEnabled,
	}
}

// SecondFactor is the set of columns replaced by 2FA enrolment changes.
type SecondFactor struct {
	Secret      string
	Enabled     bool
	BackupCodes []string
	LastCounter int64
}

// UserStore persists user credential rows.
//
// Lookup methods return ErrUserNotFound when no row matches. CreateUser returns
// ErrAccountExists for a taken username or email. The guarded write methods
// return ErrCredentialConflict when the stored credential_version differs from
// expectedVersion, and increment it on success.
type UserStore interface {
	FindActiveUserByUsername(ctx context.Context, username string) (*User, error)
	FindActiveUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	// UpgradePasswordHash swaps oldHash for newHash only while the stored hash
	// still equals oldHash. It reports whether the row was written.
	UpgradePasswordHash(ctx context.Context, userID, oldHash, newHash string) (bool, error)
	RecordLogin(ctx context.Context, userID string, at time.Time) error
	UpdateSecondFactor(ctx context.Context, userID string, expectedVersion int64, f SecondFactor) error
	ReplaceBackupCodes(ctx context.Context, userID string, expectedVersion int64, codes []string) error
	// ClaimTOTPCounter stores counter as the last accepted TOTP step. It also
	// returns ErrCredentialConflict when the stored step is not below counter.
	ClaimTOTPCounter(ctx context.Context, userID string, expectedVersion, counter int64) error
}

// Store is satisfied by backends that implement every table.
type Store interface {
	UserStore
	refresh.Store
	revocation.Store
	reset.Store
}

// Mailer delivers password-reset links. It runs off the request path; errors are logged.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error
}

// UserSummary is the user data returned with successful auth calls.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	TOTPEnabled bool   `json:"totpEnabled"`
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Username string
	Password string
	// TOTPCode holds a TOTP value or a backup code.
	TOTPCode   string
	DeviceInfo string
	IPAddress  string
}

// TokenPair is an access token plus the refresh token that can renew it.
type TokenPair struct {
	AccessToken      string      `json:"accessToken"`
	AccessJTI        string      `json:"-"`
	AccessExpiresAt  time.Time   `json:"expiresAt"`
	RefreshToken     string      `json:"refreshToken"`
	RefreshExpiresAt time.Time   `json:"refreshExpiresAt"`
	FamilyID         string      `json:"-"`
	User             UserSummary `json:"user"`
}

// LoginResult is returned by Engine.Login. Tokens is nil when RequiresTwoFactor is set.
type LoginResult struct {
	RequiresTwoFactor bool
	Tokens            *TokenPair
	// UsedBackupCode reports that a backup code was consumed to complete the login.
	UsedBackupCode bool
}

// RegisterRequest is the input to Engine.Register.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LogoutRequest revokes the caller's access token and optionally their refresh tokens.
type LogoutRequest struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	IPAddress string
	// RefreshToken, when set, ends the refresh family it belongs to.
	RefreshToken string
	// AllDevices revokes every refresh token of UserID.
	AllDevices bool
}

// Identity is the verified content of an access token.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// ResetTokenInfo describes a still-usable reset token.
type ResetTokenInfo struct {
	Email     string
	ExpiresAt time.Time
}

// TOTPSetup is returned when 2FA enrolment starts.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauthUrl"`
}

// Session is one active refresh family.
type Session = refresh.Session
