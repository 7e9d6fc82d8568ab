package memory

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/reset"
)

func (s *Store) ReplaceResetToken(_ context.Context, t *reset.Token) (int64, error) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	n := s.invalidateResets(t.UserID, t.CreatedAt)
	cp := *t
	s.resets[t.ID] = &cp
	return n, nil
}

func (s *Store) FindResetTokenByHash(_ context.Context, hash string) (*reset.Token, error) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	for _, t := range s.resets {
		if t.TokenHash == hash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, reset.ErrNotFound
}

func (s *Store) InvalidateResetTokens(_ context.Context, userID string, now time.Time) (int64, error) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	return s.invalidateResets(userID, now), nil
}

// invalidateResets must be called with resetMu held.
func (s *Store) invalidateResets(userID string, now time.Time) int64 {
	var n int64
	for _, t := range s.resets {
		if t.UserID == userID && !t.Used {
			t.Used = true
			t.UsedAt = now
			n++
		}
	}
	return n
}

// ConsumeResetToken holds the reset lock across apply, so concurrent
// consumers of the same token are serialised.
func (s *Store) ConsumeResetToken(ctx context.Context, id string, now time.Time, apply func(ctx context.Context) error) (bool, error) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	t, ok := s.resets[id]
	if !ok || t.Used || !now.Before(t.ExpiresAt) {
		return false, nil
	}
	if err := apply(ctx); err != nil {
		return false, err
	}
	t.Used = true
	t.UsedAt = now
	return true, nil
}
