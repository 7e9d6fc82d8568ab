// Package redis stores the access-token blacklist in Redis. Entries carry a
// TTL equal to the token's remaining lifetime, so expired entries disappear
// without a purge job.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/deskauth/revocation"
)

// ErrRedisUnavailable wraps every client error.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces blacklist keys.
const DefaultPrefix = "deskauth:bl"

// Store implements revocation.Store.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ revocation.Store = (*Store)(nil)

// NewStore returns a Store using client. An empty prefix selects DefaultPrefix.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(jti string) string {
	return s.prefix + ":" + jti
}

// AddRevokedToken stores e with SET NX so a repeated logout leaves the first entry in place.
func (s *Store) AddRevokedToken(ctx context.Context, e revocation.Entry) (bool, error) {
	ttl := time.Until(e.ExpiresAt)
	if !e.CreatedAt.IsZero() {
		ttl = e.ExpiresAt.Sub(e.CreatedAt)
	}
	if ttl <= 0 {
		return false, nil
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	ok, err := s.redis.SetNX(ctx, s.key(e.JTI), encodeEntry(e), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, jti string, _ time.Time) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// PurgeRevokedTokens is a no-op; Redis expires entries itself.
func (s *Store) PurgeRevokedTokens(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// Entry returns the stored metadata for jti, or nil if it is not blacklisted.
func (s *Store) Entry(ctx context.Context, jti string) (*revocation.Entry, error) {
	raw, err := s.redis.Get(ctx, s.key(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	var e revocation.Entry
	if err := json.Unmarshal([]byte(raw), (*entryJSON)(&e)); err != nil {
		return nil, fmt.Errorf("redis: corrupt blacklist entry %s: %w", jti, err)
	}
	e.JTI = jti
	return &e, nil
}

// Ping reports the round-trip latency to Redis.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// entryJSON is the stored value; the jti is the key.
type entryJSON revocation.Entry

func (e *entryJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID    string    `json:"user_id"`
		ExpiresAt time.Time `json:"expires_at"`
		Reason    string    `json:"reason,omitempty"`
		IPAddress string    `json:"ip_address,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}{e.UserID, e.ExpiresAt, e.Reason, e.IPAddress, e.CreatedAt})
}

func (e *entryJSON) UnmarshalJSON(b []byte) error {
	var v struct {
		UserID    string    `json:"user_id"`
		ExpiresAt time.Time `json:"expires_at"`
		Reason    string    `json:"reason"`
		IPAddress string    `json:"ip_address"`
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	e.UserID, e.ExpiresAt, e.Reason, e.IPAddress, e.CreatedAt = v.UserID, v.ExpiresAt, v.Reason, v.IPAddress, v.CreatedAt
	return nil
}

func encodeEntry(e revocation.Entry) string {
	b, _ := json.Marshal((*entryJSON)(&e))
	return string(b)
}
