package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/deskauth/revocation"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, ""), mr
}

func TestAddRevokedTokenIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	e := revocation.Entry{
		JTI:       "jti-1",
		UserID:    "u1",
		ExpiresAt: now.Add(time.Hour),
		Reason:    revocation.ReasonLogout,
		IPAddress: "10.0.0.1",
		CreatedAt: now,
	}

	inserted, err := s.AddRevokedToken(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	e.Reason = revocation.ReasonLogoutAll
	inserted, err = s.AddRevokedToken(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.Entry(ctx, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, revocation.ReasonLogout, got.Reason, "first entry must win")
}

func TestRevokedTokenExpiresWithToken(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.AddRevokedToken(ctx, revocation.Entry{JTI: "jti-2", ExpiresAt: now.Add(time.Minute), CreatedAt: now})
	require.NoError(t, err)

	ok, err := s.IsTokenRevoked(ctx, "jti-2", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL(DefaultPrefix+":jti-2"))

	mr.FastForward(2 * time.Minute)
	ok, err = s.IsTokenRevoked(ctx, "jti-2", now)
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := s.Entry(ctx, "jti-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAlreadyExpiredTokenIsNotStored(t *testing.T) {
	s, mr := newTestStore(t)
	now := time.Now()

	inserted, err := s.AddRevokedToken(context.Background(), revocation.Entry{JTI: "old", ExpiresAt: now.Add(-time.Second), CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.False(t, mr.Exists(DefaultPrefix+":old"))
}

func TestUnavailableRedisIsWrapped(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	s := NewStore(client, "")
	mr.Close()

	_, err = s.IsTokenRevoked(context.Background(), "jti", time.Now())
	assert.ErrorIs(t, err, ErrRedisUnavailable)
	_, err = s.Ping(context.Background())
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestRegistryOverRedis(t *testing.T) {
	s, _ := newTestStore(t)
	reg := revocation.NewRegistry(s)
	ctx := context.Background()

	require.NoError(t, reg.Blacklist(ctx, "jti-3", "u1", time.Now().Add(time.Hour), revocation.ReasonLogout, ""))
	ok, err := reg.IsBlacklisted(ctx, "jti-3")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := reg.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
