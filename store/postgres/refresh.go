package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth/refresh"
)

func (s *Store) InsertRefreshToken(ctx context.Context, t *refresh.Token) error {
	const op = "postgres.InsertRefreshToken"

	if err := insertRefresh(ctx, s.conn(ctx), t); err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return nil
}

func insertRefresh(ctx context.Context, db DBTX, t *refresh.Token) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, user_id, family_id, device_info, ip_address,
			created_at, expires_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.TokenHash, t.UserID, t.FamilyID, t.DeviceInfo, t.IPAddress,
		t.CreatedAt, t.ExpiresAt, t.LastUsedAt,
	)
	return err
}

func (s *Store) FindRefreshTokenByHash(ctx context.Context, hash string) (*refresh.Token, error) {
	const op = "postgres.FindRefreshTokenByHash"

	var (
		t          refresh.Token
		revokedAt  sql.NullTime
		reason     sql.NullString
		replacedBy sql.NullString
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, family_id, device_info, ip_address,
			created_at, expires_at, last_used_at, revoked, revoked_at, revoked_reason, replaced_by
		FROM refresh_tokens WHERE token_hash = $1`, hash,
	).Scan(
		&t.ID, &t.TokenHash, &t.UserID, &t.FamilyID, &t.DeviceInfo, &t.IPAddress,
		&t.CreatedAt, &t.ExpiresAt, &t.LastUsedAt, &t.Revoked, &revokedAt, &reason, &replacedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: db error: %w", op, err)
	}
	t.RevokedAt = revokedAt.Time
	t.RevokedReason = reason.String
	t.ReplacedBy = replacedBy.String
	return &t, nil
}

// RotateRefreshToken revokes oldID before inserting next. A concurrent rotation
// of the same token then updates no rows and gets ErrConflict.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID string, next *refresh.Token, now time.Time) error {
	const op = "postgres.RotateRefreshToken"

	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE refresh_tokens
			SET revoked = TRUE, revoked_at = $2, revoked_reason = $3, replaced_by = $4, last_used_at = $2
			WHERE id = $1 AND NOT revoked AND expires_at > $2`,
			oldID, now, refresh.ReasonRotated, next.ID,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return refresh.ErrConflict
		}
		return insertRefresh(ctx, tx, next)
	})
	if errors.Is(err, refresh.ErrConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%s: db error: %w", op, err)
	}
	return nil
}

func (s *Store) RevokeRefreshFamily(ctx context.Context, familyID, reason string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, "postgres.RevokeRefreshFamily", "family_id", familyID, reason, now)
}

func (s *Store) RevokeUserRefreshTokens(ctx context.Context, userID, reason string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, "postgres.RevokeUserRefreshTokens", "user_id", userID, reason, now)
}

// column is one of two constants above, never caller input.
func (s *Store) revokeWhere(ctx context.Context, op, column, value, reason string, now time.Time) (int64, error) {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, revoked_reason = $3
		WHERE `+column+` = $1 AND NOT revoked`,
		value, now, reason,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	return n, nil
}

func (s *Store) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]refresh.Session, error) {
	const op = "postgres.ListActiveSessions"

	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT t.family_id, t.device_info, t.ip_address,
			(SELECT min(f.created_at) FROM refresh_tokens f WHERE f.family_id = t.family_id),
			t.last_used_at, t.expires_at
		FROM refresh_tokens t
		WHERE t.user_id = $1 AND NOT t.revoked AND t.expires_at > $2
		ORDER BY t.last_used_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: db error: %w", op, err)
	}
	defer rows.Close()

	var out []refresh.Session
	for rows.Next() {
		var sess refresh.Session
		if err := rows.Scan(&sess.FamilyID, &sess.DeviceInfo, &sess.IPAddress,
			&sess.CreatedAt, &sess.LastUsedAt, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}
