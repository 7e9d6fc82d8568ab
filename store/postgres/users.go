package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/MrEthical07/deskauth"
)

const userColumns = `id, username, email, role, first_name, last_name, password_hash,
	totp_secret, totp_enabled, totp_last_counter, backup_codes, active, credential_version,
	last_login_at, created_at, updated_at`

func (s *Store) FindActiveUserByUsername(ctx context.Context, username string) (*deskauth.User, error) {
	return s.findUser(ctx, "postgres.FindActiveUserByUsername",
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1) AND active`, username)
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (*deskauth.User, error) {
	return s.findUser(ctx, "postgres.FindActiveUserByEmail",
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) AND active`, email)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*deskauth.User, error) {
	return s.findUser(ctx, "postgres.FindUserByID",
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) findUser(ctx context.Context, op, query string, arg string) (*deskauth.User, error) {
	var (
		u         deskauth.User
		secret    sql.NullString
		lastLogin sql.NullTime
		codes     []string
	)
	err := s.conn(ctx).QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.Role, &u.FirstName, &u.LastName, &u.PasswordHash,
		&secret, &u.TOTPEnabled, &u.TOTPLastCounter, pq.Array(&codes), &u.Active, &u.CredentialVersion,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, deskauth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: db error: %w", op, err)
	}
	u.TOTPSecret = secret.String
	u.LastLoginAt = lastLogin.Time
	u.BackupCodes = codes
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *deskauth.User) error {
	const op = "postgres.CreateUser"

	if u == nil || u.ID == "" {
		return fmt.Errorf("%s: user id required", op)
	}
	now := time.Now().UTC()
	created, updated := u.CreatedAt, u.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	codes := u.BackupCodes
	if codes == nil {
		codes = []string{}
	}

	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, first_name, last_name, password_hash,
			totp_secret, totp_enabled, backup_codes, active, credential_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		u.ID, u.Username, u.Email, u.Role, u.FirstName, u.LastName, u.PasswordHash,
		nullString(u.TOTPSecret), u.TOTPEnabled, pq.Array(codes), u.Active, u.CredentialVersion,
		created, updated,
	)
	if isUniqueViolation(err) {
		return deskauth.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	const op = "postgres.UpdatePasswordHash"

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return expectOneRow(op, res, deskauth.ErrUserNotFound)
}

func (s *Store) UpgradePasswordHash(ctx context.Context, userID, oldHash, newHash string) (bool, error) {
	const op = "postgres.UpgradePasswordHash"

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET password_hash = $3, updated_at = now() WHERE id = $1 AND password_hash = $2`,
		userID, oldHash, newHash)
	if err != nil {
		return false, fmt.Errorf("%s: db error: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: db error: %w", op, err)
	}
	return n == 1, nil
}

func (s *Store) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	const op = "postgres.RecordLogin"

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return expectOneRow(op, res, deskauth.ErrUserNotFound)
}

func (s *Store) UpdateSecondFactor(ctx context.Context, userID string, expectedVersion int64, f deskauth.SecondFactor) error {
	const op = "postgres.UpdateSecondFactor"

	codes := f.BackupCodes
	if codes == nil {
		codes = []string{}
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE users
		SET totp_secret = $3, totp_enabled = $4, backup_codes = $5, totp_last_counter = $6,
			credential_version = credential_version + 1, updated_at = now()
		WHERE id = $1 AND credential_version = $2`,
		userID, expectedVersion, nullString(f.Secret), f.Enabled, pq.Array(codes), f.LastCounter,
	)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return s.guardedResult(ctx, op, userID, res)
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, expectedVersion int64, codes []string) error {
	const op = "postgres.ReplaceBackupCodes"

	if codes == nil {
		codes = []string{}
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE users
		SET backup_codes = $3, credential_version = credential_version + 1, updated_at = now()
		WHERE id = $1 AND credential_version = $2`,
		userID, expectedVersion, pq.Array(codes),
	)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return s.guardedResult(ctx, op, userID, res)
}

func (s *Store) ClaimTOTPCounter(ctx context.Context, userID string, expectedVersion, counter int64) error {
	const op = "postgres.ClaimTOTPCounter"

	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE users
		SET totp_last_counter = $3, credential_version = credential_version + 1, updated_at = now()
		WHERE id = $1 AND credential_version = $2 AND totp_last_counter < $3`,
		userID, expectedVersion, counter,
	)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return s.guardedResult(ctx, op, userID, res)
}

// guardedResult tells a stale version apart from a missing user.
func (s *Store) guardedResult(ctx context.Context, op, userID string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	err = s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	if !exists {
		return deskauth.ErrUserNotFound
	}
	return deskauth.ErrCredentialConflict
}

func expectOneRow(op string, res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
