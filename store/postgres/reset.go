package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth/reset"
)

// errResetSpent rolls back a consume whose token was already used or expired.
var errResetSpent = errors.New("postgres: reset token spent")

// ReplaceResetToken supersedes the user's unused tokens and inserts t in one
// transaction. The user row is locked first so concurrent requests queue.
func (s *Store) ReplaceResetToken(ctx context.Context, t *reset.Token) (int64, error) {
	const op = "postgres.ReplaceResetToken"

	var superseded int64
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM users WHERE id = $1 FOR NO KEY UPDATE`, t.UserID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE user_id = $1 AND NOT used`,
			t.UserID, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if superseded, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO password_reset_tokens (id, token_hash, user_id, email, created_at, expires_at, ip_address)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, t.TokenHash, t.UserID, t.Email, t.CreatedAt, t.ExpiresAt, t.IPAddress,
		)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return superseded, nil
}

func (s *Store) FindResetTokenByHash(ctx context.Context, hash string) (*reset.Token, error) {
	const op = "postgres.FindResetTokenByHash"

	var (
		t      reset.Token
		usedAt sql.NullTime
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, email, created_at, expires_at, used, used_at, ip_address
		FROM password_reset_tokens WHERE token_hash = $1`, hash,
	).Scan(&t.ID, &t.TokenHash, &t.UserID, &t.Email, &t.CreatedAt, &t.ExpiresAt, &t.Used, &usedAt, &t.IPAddress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reset.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: db error: %w", op, err)
	}
	t.UsedAt = usedAt.Time
	return &t, nil
}

func (s *Store) InvalidateResetTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	const op = "postgres.InvalidateResetTokens"

	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE user_id = $1 AND NOT used`,
		userID, now)
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	return n, nil
}

// ConsumeResetToken marks the token used and runs apply in one transaction.
// Store calls made by apply with the ctx it receives join that transaction.
func (s *Store) ConsumeResetToken(ctx context.Context, id string, now time.Time, apply func(ctx context.Context) error) (bool, error) {
	const op = "postgres.ConsumeResetToken"

	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE password_reset_tokens SET used = TRUE, used_at = $2
			WHERE id = $1 AND NOT used AND expires_at > $2`,
			id, now,
		)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n == 0 {
			return errResetSpent
		}
		return apply(ctx)
	})
	if errors.Is(err, errResetSpent) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
