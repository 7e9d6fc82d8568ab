package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/revocation"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

var userCols = []string{
	"id", "username", "email", "role", "first_name", "last_name", "password_hash",
	"totp_secret", "totp_enabled", "totp_last_counter", "backup_codes", "active", "credential_version",
	"last_login_at", "created_at", "updated_at",
}

func TestFindActiveUserByUsername(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE lower\(username\) = lower\(\$1\) AND active`).
		WithArgs("Admin").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u-1", "admin", "admin@example.com", "admin", "Ada", "Admin", "$2a$10$hash",
			"JBSWY3DPEHPK3PXP", true, int64(56_666_666), "{$2a$10$one,$2a$10$two}", true, int64(4),
			nil, now, now,
		))

	u, err := s.FindActiveUserByUsername(ctx, "Admin")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "admin", u.Role)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", u.TOTPSecret)
	assert.True(t, u.TOTPEnabled)
	assert.Equal(t, []string{"$2a$10$one", "$2a$10$two"}, u.BackupCodes)
	assert.Equal(t, int64(4), u.CredentialVersion)
	assert.Equal(t, int64(56_666_666), u.TOTPLastCounter)
	assert.True(t, u.LastLoginAt.IsZero())
}

func TestFindUserNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.FindUserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, deskauth.ErrUserNotFound)
}

func TestFindUserDBError(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`(?s)^SELECT .+ FROM users WHERE lower\(email\)`).
		WillReturnError(errors.New("connection reset"))

	_, err := s.FindActiveUserByEmail(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, deskauth.ErrUserNotFound)
	assert.Contains(t, err.Error(), "db error")
}

func TestCreateUserDuplicate(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+users\s*\(`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := s.CreateUser(context.Background(), &deskauth.User{ID: "u-1", Username: "admin", Email: "a@example.com"})
	assert.ErrorIs(t, err, deskauth.ErrAccountExists)
}

func TestCreateUser(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+users\s*\(`).
		WithArgs("u-1", "agent", "agent@example.com", "user", "", "", "hash",
			sqlmock.AnyArg(), false, sqlmock.AnyArg(), true, int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateUser(context.Background(), &deskauth.User{
		ID: "u-1", Username: "agent", Email: "agent@example.com", Role: "user",
		PasswordHash: "hash", Active: true,
	})
	require.NoError(t, err)
}

func TestUpdateSecondFactorVersionGuard(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE users\s+SET totp_secret = \$3.+WHERE id = \$1 AND credential_version = \$2`).
			WithArgs("u-1", int64(2), sqlmock.AnyArg(), true, sqlmock.AnyArg(), int64(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := s.UpdateSecondFactor(context.Background(), "u-1", 2, deskauth.SecondFactor{Secret: "S", Enabled: true})
		require.NoError(t, err)
	})

	t.Run("stale version", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE users\s+SET totp_secret`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users WHERE id = \$1\)`).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.UpdateSecondFactor(context.Background(), "u-1", 1, deskauth.SecondFactor{})
		assert.ErrorIs(t, err, deskauth.ErrCredentialConflict)
	})

	t.Run("missing user", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE users\s+SET backup_codes`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		err := s.ReplaceBackupCodes(context.Background(), "gone", 0, nil)
		assert.ErrorIs(t, err, deskauth.ErrUserNotFound)
	})
}

func TestUpgradePasswordHashComparesOldHash(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash = \$3, updated_at = now\(\) WHERE id = \$1 AND password_hash = \$2`).
			WithArgs("u-1", "old-hash", "new-hash").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := s.UpgradePasswordHash(context.Background(), "u-1", "old-hash", "new-hash")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("hash changed", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`UPDATE users SET password_hash = \$3`).
			WithArgs("u-1", "old-hash", "new-hash").
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := s.UpgradePasswordHash(context.Background(), "u-1", "old-hash", "new-hash")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClaimTOTPCounter(t *testing.T) {
	t.Run("advanced", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE users\s+SET totp_last_counter = \$3.+WHERE id = \$1 AND credential_version = \$2 AND totp_last_counter < \$3`).
			WithArgs("u-1", int64(3), int64(1000)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.ClaimTOTPCounter(context.Background(), "u-1", 3, 1000))
	})

	t.Run("already used", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectExec(`(?s)UPDATE users\s+SET totp_last_counter`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("u-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.ClaimTOTPCounter(context.Background(), "u-1", 3, 1000)
		assert.ErrorIs(t, err, deskauth.ErrCredentialConflict)
	})
}

func TestRotateRefreshToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	next := &refresh.Token{
		ID: "t-2", TokenHash: "h2", UserID: "u-1", FamilyID: "f-1",
		CreatedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour), LastUsedAt: now,
	}

	t.Run("commits", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`(?s)UPDATE refresh_tokens.+WHERE id = \$1 AND NOT revoked AND expires_at > \$2`).
			WithArgs("t-1", now, refresh.ReasonRotated, "t-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`(?s)INSERT INTO refresh_tokens`).
			WithArgs("t-2", "h2", "u-1", "f-1", "", "", now, next.ExpiresAt, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.RotateRefreshToken(context.Background(), "t-1", next, now))
	})

	t.Run("lost race rolls back", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`(?s)UPDATE refresh_tokens`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := s.RotateRefreshToken(context.Background(), "t-1", next, now)
		assert.ErrorIs(t, err, refresh.ErrConflict)
	})
}

func TestRevokeRefreshFamilyCountsRows(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(`(?s)UPDATE refresh_tokens.+WHERE family_id = \$1 AND NOT revoked`).
		WithArgs("f-1", now, refresh.ReasonReuseDetected).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.RevokeRefreshFamily(context.Background(), "f-1", refresh.ReasonReuseDetected, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestFindRefreshTokenNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM refresh_tokens WHERE token_hash = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := s.FindRefreshTokenByHash(context.Background(), "nope")
	assert.ErrorIs(t, err, refresh.ErrNotFound)
}

func TestAddRevokedTokenIsIdempotent(t *testing.T) {
	s, mock := newMock(t)
	e := revocation.Entry{JTI: "j-1", UserID: "u-1", ExpiresAt: time.Now().Add(time.Hour), Reason: revocation.ReasonLogout}

	mock.ExpectExec(`(?s)INSERT INTO token_blacklist.+ON CONFLICT \(jti\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO token_blacklist.+ON CONFLICT \(jti\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := s.AddRevokedToken(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.AddRevokedToken(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestPurgeRevokedTokens(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(`DELETE FROM token_blacklist WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := s.PurgeRevokedTokens(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestConsumeResetTokenSharesTransaction(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE password_reset_tokens SET used = TRUE.+WHERE id = \$1 AND NOT used AND expires_at > \$2`).
		WithArgs("r-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs("u-1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.ConsumeResetToken(context.Background(), "r-1", now, func(ctx context.Context) error {
		return s.UpdatePasswordHash(ctx, "u-1", "new-hash")
	})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsumeResetTokenFailedApplyRollsBack(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	ok, err := s.ConsumeResetToken(context.Background(), "r-1", time.Now(), func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestConsumeResetTokenSpent(t *testing.T) {
	s, mock := newMock(t)
	called := false

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	ok, err := s.ConsumeResetToken(context.Background(), "r-1", time.Now(), func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestReplaceResetTokenLocksUserAndSupersedes(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	tok := &reset.Token{
		ID: "r-2", TokenHash: "hash", UserID: "u-1", Email: "user@example.com",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT 1 FROM users WHERE id = \$1 FOR NO KEY UPDATE`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens SET used = TRUE, used_at = \$2 WHERE user_id = \$1 AND NOT used`).
		WithArgs("u-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO password_reset_tokens`).
		WithArgs("r-2", "hash", "u-1", "user@example.com", now, tok.ExpiresAt, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := s.ReplaceResetToken(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReplaceResetTokenInsertFailureRollsBack(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`FOR NO KEY UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE password_reset_tokens`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO password_reset_tokens`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.ReplaceResetToken(context.Background(), &reset.Token{ID: "r-1", UserID: "u-1", CreatedAt: now})
	require.Error(t, err)
}

func TestPingReportsConnectionFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
