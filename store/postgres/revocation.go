package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/deskauth/revocation"
)

func (s *Store) AddRevokedToken(ctx context.Context, e revocation.Entry) (bool, error) {
	const op = "postgres.AddRevokedToken"

	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO token_blacklist (jti, user_id, expires_at, reason, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (jti) DO NOTHING`,
		e.JTI, e.UserID, e.ExpiresAt, e.Reason, e.IPAddress, created,
	)
	if err != nil {
		return false, fmt.Errorf("%s: db error: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: db error: %w", op, err)
	}
	return n == 1, nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	const op = "postgres.IsTokenRevoked"

	var revoked bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1 AND expires_at > $2)`,
		jti, now,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%s: db error: %w", op, err)
	}
	return revoked, nil
}

func (s *Store) PurgeRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "postgres.PurgeRevokedTokens"

	res, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: db error: %w", op, err)
	}
	return n, nil
}
