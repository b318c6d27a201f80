package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Backend.Get for missing or expired keys.
var ErrNotFound = errors.New("cache: key not found")

// Backend is the storage the response cache runs on. Counters must be updated
// atomically by the backend; the cache never does read-modify-write on them.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, keys ...string) (int64, error)

	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)

	// Touch records key as accessed at the given time in the named recency
	// index and reports whether the key was new to the index.
	Touch(ctx context.Context, index, key string, at time.Time) (bool, error)
	// Refresh updates the access time of a key already in the index and
	// never adds one.
	Refresh(ctx context.Context, index, key string, at time.Time) error
	// Oldest returns the least recently touched key in the index.
	Oldest(ctx context.Context, index string) (string, bool, error)
	// Untouch drops key from the index and reports whether it was present.
	Untouch(ctx context.Context, index, key string) (bool, error)

	Tag(ctx context.Context, tag, key string) error
	Untag(ctx context.Context, tag string, keys ...string) error
	TagMembers(ctx context.Context, tag string) ([]string, error)
}
