package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Hour), mr
}

func TestBegin_FirstRequestOwnsKey(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	orderID, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, orderID)

	v, err := mr.Get(redisKey("u1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, pendingValue, v)
	assert.Equal(t, pendingTTL, mr.TTL(redisKey("u1", "k1")))
}

func TestBegin_InProgress(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	_, err = s.Begin(ctx, "u1", "k1")
	require.ErrorIs(t, err, ErrInProgress)
}

func TestBegin_ReplaysCompletedOrder(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "u1", "k1", "order-1"))
	assert.Equal(t, time.Hour, mr.TTL(redisKey("u1", "k1")))

	orderID, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", orderID)
}

func TestBegin_KeysAreScopedPerUser(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	_, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)

	orderID, err := s.Begin(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.Empty(t, orderID)
}

func TestAbort_ReleasesKey(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, "u1", "k1"))
	assert.False(t, mr.Exists(redisKey("u1", "k1")))

	orderID, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, orderID)
}

func TestBegin_PendingKeyExpires(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	mr.FastForward(pendingTTL + time.Second)

	orderID, err := s.Begin(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.Empty(t, orderID)
}

func TestRedisErrors(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()
	mr.Close()

	_, err := s.Begin(ctx, "u1", "k1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInProgress)
	require.Error(t, s.Complete(ctx, "u1", "k1", "o"))
	require.Error(t, s.Abort(ctx, "u1", "k1"))
	require.Error(t, s.Ping(ctx))
}

func TestNewRedisStore_DefaultTTL(t *testing.T) {
	s := NewRedisStore(nil, 0)
	assert.Equal(t, DefaultTTL, s.ttl)
}
