package memory

import (
	"context"
	"time"

	"github.com/MrEthical07/deskauth/revocation"
)

func (s *Store) AddRevokedToken(_ context.Context, e revocation.Entry) (bool, error) {
	s.blacklistMu.Lock()
	defer s.blacklistMu.Unlock()

	if _, ok := s.blacklist[e.JTI]; ok {
		return false, nil
	}
	s.blacklist[e.JTI] = e
	return true, nil
}

func (s *Store) IsTokenRevoked(_ context.Context, jti string, now time.Time) (bool, error) {
	s.blacklistMu.RLock()
	defer s.blacklistMu.RUnlock()

	e, ok := s.blacklist[jti]
	return ok && now.Before(e.ExpiresAt), nil
}

func (s *Store) PurgeRevokedTokens(_ context.Context, now time.Time) (int64, error) {
	s.blacklistMu.Lock()
	defer s.blacklistMu.Unlock()

	var n int64
	for jti, e := range s.blacklist {
		if !now.Before(e.ExpiresAt) {
			delete(s.blacklist, jti)
			n++
		}
	}
	return n, nil
}
