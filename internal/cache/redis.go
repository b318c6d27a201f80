package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps entries as plain string keys with a TTL, the recency
// index as a sorted set scored by access time, and tags as sets.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, nil
}

func (b *RedisBackend) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Forget(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return b.client.Del(ctx, keys...).Result()
}

func (b *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	return b.client.Incr(ctx, key).Result()
}

func (b *RedisBackend) Decr(ctx context.Context, key string) (int64, error) {
	return b.client.Decr(ctx, key).Result()
}

// Scores are microseconds so they stay exact in a float64.
func (b *RedisBackend) Touch(ctx context.Context, index, key string, at time.Time) (bool, error) {
	n, err := b.client.ZAdd(ctx, index, redis.Z{Score: float64(at.UnixMicro()), Member: key}).Result()
	if err != nil {
		return false, fmt.Errorf("cache touch: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Refresh(ctx context.Context, index, key string, at time.Time) error {
	err := b.client.ZAddXX(ctx, index, redis.Z{Score: float64(at.UnixMicro()), Member: key}).Err()
	if err != nil {
		return fmt.Errorf("cache refresh: %w", err)
	}
	return nil
}

func (b *RedisBackend) Oldest(ctx context.Context, index string) (string, bool, error) {
	members, err := b.client.ZRange(ctx, index, 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("cache oldest: %w", err)
	}
	if len(members) == 0 {
		return "", false, nil
	}
	return members[0], true, nil
}

func (b *RedisBackend) Untouch(ctx context.Context, index, key string) (bool, error) {
	n, err := b.client.ZRem(ctx, index, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache untouch: %w", err)
	}
	return n > 0, nil
}

func (b *RedisBackend) Tag(ctx context.Context, tag, key string) error {
	return b.client.SAdd(ctx, tag, key).Err()
}

func (b *RedisBackend) Untag(ctx context.Context, tag string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	return b.client.SRem(ctx, tag, members...).Err()
}

func (b *RedisBackend) TagMembers(ctx context.Context, tag string) ([]string, error) {
	return b.client.SMembers(ctx, tag).Result()
}
