// Package idempotency deduplicates retried checkout requests that carry the
// same Idempotency-Key.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// ErrInProgress is returned by Begin while another request with the same key
// is still being processed.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

const (
	pendingValue = "pending"

	// DefaultTTL bounds how long a completed key replays its order.
	DefaultTTL = 24 * time.Hour

	// pendingTTL releases keys of requests that died without Abort.
	pendingTTL = time.Minute
)

// RedisStore records idempotency keys in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore keeping completed keys for ttl.
// Non-positive ttl means DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Begin claims the key for userID. It returns an empty orderID when the
// caller now owns the key and must either Complete or Abort it. A non-empty
// orderID means an earlier request already created that order.
func (s *RedisStore) Begin(ctx context.Context, userID, key string) (string, error) {
	k := redisKey(userID, key)
	ok, err := s.client.SetNX(ctx, k, pendingValue, pendingTTL).Result()
	if err != nil {
		return "", fmt.Errorf("claiming idempotency key: %w", err)
	}
	if ok {
		return "", nil
	}

	v, err := s.client.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SetNX and Get; try once more.
		return s.retry(ctx, k)
	case err != nil:
		return "", fmt.Errorf("reading idempotency key: %w", err)
	case v == pendingValue:
		return "", ErrInProgress
	default:
		return v, nil
	}
}

func (s *RedisStore) retry(ctx context.Context, k string) (string, error) {
	ok, err := s.client.SetNX(ctx, k, pendingValue, pendingTTL).Result()
	if err != nil {
		return "", fmt.Errorf("claiming idempotency key: %w", err)
	}
	if !ok {
		return "", ErrInProgress
	}
	return "", nil
}

// Complete binds the key to the created order.
func (s *RedisStore) Complete(ctx context.Context, userID, key, orderID string) error {
	if err := s.client.Set(ctx, redisKey(userID, key), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("completing idempotency key: %w", err)
	}
	return nil
}

// Abort releases the key so the request can be retried.
func (s *RedisStore) Abort(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, redisKey(userID, key)).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(userID, key string) string {
	return fmt.Sprintf("giftkart:idem:%s:%s", userID, key)
}
