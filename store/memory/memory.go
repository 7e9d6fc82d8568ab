package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/refresh"
	"github.com/MrEthical07/deskauth/reset"
	"github.com/MrEthical07/deskauth/revocation"
)

// Store keeps every table in maps. Each table has its own lock so a reset
// consumption can update the user row while holding the reset lock.
type Store struct {
	usersMu sync.RWMutex
	users   map[string]*deskauth.User

	refreshMu sync.RWMutex
	refresh   map[string]*refresh.Token
	byHash    map[string]string

	blacklistMu sync.RWMutex
	blacklist   map[string]revocation.Entry

	resetMu sync.Mutex
	resets  map[string]*reset.Token
}

var _ deskauth.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:     make(map[string]*deskauth.User),
		refresh:   make(map[string]*refresh.Token),
		byHash:    make(map[string]string),
		blacklist: make(map[string]revocation.Entry),
		resets:    make(map[string]*reset.Token),
	}
}

/* -------- users -------- */

func (s *Store) FindActiveUserByUsername(_ context.Context, username string) (*deskauth.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	for _, u := range s.users {
		if u.Active && strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, deskauth.ErrUserNotFound
}

func (s *Store) FindActiveUserByEmail(_ context.Context, email string) (*deskauth.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	for _, u := range s.users {
		if u.Active && strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, deskauth.ErrUserNotFound
}

func (s *Store) FindUserByID(_ context.Context, id string) (*deskauth.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, deskauth.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *Store) CreateUser(_ context.Context, u *deskauth.User) error {
	const op = "memory.CreateUser"

	if u == nil || u.ID == "" {
		return fmt.Errorf("%s: user id required", op)
	}
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	for _, existing := range s.users {
		if existing.ID == u.ID ||
			strings.EqualFold(existing.Username, u.Username) ||
			(u.Email != "" && strings.EqualFold(existing.Email, u.Email)) {
			return deskauth.ErrAccountExists
		}
	}
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return deskauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpgradePasswordHash(_ context.Context, userID, oldHash, newHash string) (bool, error) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, ok := s.users[userID]
	if !ok || u.PasswordHash != oldHash {
		return false, nil
	}
	u.PasswordHash = newHash
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) RecordLogin(_ context.Context, userID string, at time.Time) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return deskauth.ErrUserNotFound
	}
	u.LastLoginAt = at
	return nil
}

func (s *Store) UpdateSecondFactor(_ context.Context, userID string, expectedVersion int64, f deskauth.SecondFactor) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, err := s.guarded(userID, expectedVersion)
	if err != nil {
		return err
	}
	u.TOTPSecret = f.Secret
	u.TOTPEnabled = f.Enabled
	u.BackupCodes = cloneStrings(f.BackupCodes)
	u.TOTPLastCounter = f.LastCounter
	u.CredentialVersion++
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReplaceBackupCodes(_ context.Context, userID string, expectedVersion int64, codes []string) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, err := s.guarded(userID, expectedVersion)
	if err != nil {
		return err
	}
	u.BackupCodes = cloneStrings(codes)
	u.CredentialVersion++
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ClaimTOTPCounter(_ context.Context, userID string, expectedVersion, counter int64) error {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()

	u, err := s.guarded(userID, expectedVersion)
	if err != nil {
		return err
	}
	if u.TOTPLastCounter >= counter {
		return deskauth.ErrCredentialConflict
	}
	u.TOTPLastCounter = counter
	u.CredentialVersion++
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// guarded must be called with usersMu held.
func (s *Store) guarded(userID string, expectedVersion int64) (*deskauth.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, deskauth.ErrUserNotFound
	}
	if u.CredentialVersion != expectedVersion {
		return nil, deskauth.ErrCredentialConflict
	}
	return u, nil
}

func cloneUser(u *deskauth.User) *deskauth.User {
	out := *u
	out.BackupCodes = cloneStrings(u.BackupCodes)
	return &out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
