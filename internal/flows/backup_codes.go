package flows

import (
	"context"
	"errors"
)

// DefaultBackupCodeAttempts bounds optimistic retries of a backup-code write.
const DefaultBackupCodeAttempts = 3

// ErrBackupCodeContention is returned when every optimistic attempt lost its race.
var ErrBackupCodeContention = errors.New("flows: backup code update contended")

// BackupCodeDeps captures backup-code consumption dependencies.
type BackupCodeDeps struct {
	ReloadUser   func(ctx context.Context, userID string) (*LoginUser, error)
	IsHashed     func(codes []string) bool
	VerifyHashed func(code string, hashed []string) int
	VerifyLegacy func(code string, plain []string) int
	HashCodes    func(codes []string) ([]string, error)
	// WriteCodes replaces the batch if the stored credential_version still
	// equals expectedVersion.
	WriteCodes        func(ctx context.Context, userID string, expectedVersion int64, codes []string) error
	IsVersionConflict func(error) bool
	MaxAttempts       int
}

func normalizeBackupCodeDeps(deps *BackupCodeDeps) error {
	if deps.ReloadUser == nil || deps.IsHashed == nil || deps.VerifyHashed == nil ||
		deps.VerifyLegacy == nil || deps.HashCodes == nil || deps.WriteCodes == nil {
		return errors.New("flows: backup code dependencies missing")
	}
	if deps.IsVersionConflict == nil {
		deps.IsVersionConflict = func(error) bool { return false }
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = DefaultBackupCodeAttempts
	}
	return nil
}

// RunConsumeBackupCode removes code from user's batch and returns the index it
// occupied, or -1 when nothing matched.
//
// Legacy plaintext batches are matched directly and the remaining codes are
// written back hashed, so a batch migrates on its first successful use.
func RunConsumeBackupCode(ctx context.Context, user *LoginUser, code string, deps BackupCodeDeps) (int, error) {
	if err := normalizeBackupCodeDeps(&deps); err != nil {
		return -1, err
	}
	if user == nil {
		return -1, nil
	}

	current := user
	for attempt := 0; attempt < deps.MaxAttempts; attempt++ {
		if attempt > 0 {
			reloaded, err := deps.ReloadUser(ctx, user.ID)
			if err != nil {
				return -1, err
			}
			current = reloaded
		}
		if len(current.BackupCodes) == 0 {
			return -1, nil
		}

		hashed := deps.IsHashed(current.BackupCodes)
		var idx int
		if hashed {
			idx = deps.VerifyHashed(code, current.BackupCodes)
		} else {
			idx = deps.VerifyLegacy(code, current.BackupCodes)
		}
		if idx < 0 {
			return -1, nil
		}

		remaining := make([]string, 0, len(current.BackupCodes)-1)
		remaining = append(remaining, current.BackupCodes[:idx]...)
		remaining = append(remaining, current.BackupCodes[idx+1:]...)
		if !hashed && len(remaining) > 0 {
			upgraded, err := deps.HashCodes(remaining)
			if err != nil {
				return -1, err
			}
			remaining = upgraded
		}

		err := deps.WriteCodes(ctx, current.ID, current.CredentialVersion, remaining)
		if err == nil {
			user.BackupCodes = remaining
			user.CredentialVersion = current.CredentialVersion + 1
			return idx, nil
		}
		if !deps.IsVersionConflict(err) {
			return -1, err
		}
	}
	return -1, ErrBackupCodeContention
}
