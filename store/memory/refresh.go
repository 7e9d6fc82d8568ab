package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/MrEthical07/deskauth/refresh"
)

var errDuplicateToken = errors.New("memory: duplicate refresh token")

func (s *Store) InsertRefreshToken(_ context.Context, t *refresh.Token) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	return s.insertRefreshLocked(t)
}

func (s *Store) insertRefreshLocked(t *refresh.Token) error {
	if _, ok := s.byHash[t.TokenHash]; ok {
		return errDuplicateToken
	}
	if _, ok := s.refresh[t.ID]; ok {
		return errDuplicateToken
	}
	cp := *t
	s.refresh[t.ID] = &cp
	s.byHash[t.TokenHash] = t.ID
	return nil
}

func (s *Store) FindRefreshTokenByHash(_ context.Context, hash string) (*refresh.Token, error) {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()

	id, ok := s.byHash[hash]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *s.refresh[id]
	return &cp, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID string, next *refresh.Token, now time.Time) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	old, ok := s.refresh[oldID]
	if !ok {
		return refresh.ErrNotFound
	}
	if !old.Active(now) {
		return refresh.ErrConflict
	}
	if err := s.insertRefreshLocked(next); err != nil {
		return err
	}
	old.Revoked = true
	old.RevokedAt = now
	old.RevokedReason = refresh.ReasonRotated
	old.ReplacedBy = next.ID
	old.LastUsedAt = now
	return nil
}

func (s *Store) RevokeRefreshFamily(_ context.Context, familyID, reason string, now time.Time) (int64, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	return s.revokeWhere(func(t *refresh.Token) bool { return t.FamilyID == familyID }, reason, now), nil
}

func (s *Store) RevokeUserRefreshTokens(_ context.Context, userID, reason string, now time.Time) (int64, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	return s.revokeWhere(func(t *refresh.Token) bool { return t.UserID == userID }, reason, now), nil
}

func (s *Store) revokeWhere(match func(*refresh.Token) bool, reason string, now time.Time) int64 {
	var n int64
	for _, t := range s.refresh {
		if t.Revoked || !match(t) {
			continue
		}
		t.Revoked = true
		t.RevokedAt = now
		t.RevokedReason = reason
		n++
	}
	return n
}

func (s *Store) ListActiveSessions(_ context.Context, userID string, now time.Time) ([]refresh.Session, error) {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()

	started := make(map[string]time.Time)
	heads := make(map[string]*refresh.Token)
	for _, t := range s.refresh {
		if t.UserID != userID {
			continue
		}
		if first, ok := started[t.FamilyID]; !ok || t.CreatedAt.Before(first) {
			started[t.FamilyID] = t.CreatedAt
		}
		if t.Active(now) {
			heads[t.FamilyID] = t
		}
	}

	out := make([]refresh.Session, 0, len(heads))
	for family, t := range heads {
		out = append(out, refresh.Session{
			FamilyID:   family,
			DeviceInfo: t.DeviceInfo,
			IPAddress:  t.IPAddress,
			CreatedAt:  started[family],
			LastUsedAt: t.LastUsedAt,
			ExpiresAt:  t.ExpiresAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}
