package cache

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/metrics"
)

const (
	DefaultCapacity = 500
	DefaultTTL      = time.Hour
	DefaultPrefix   = "chat:cache:"
)

type Options struct {
	Capacity int
	TTL      time.Duration
	Prefix   string
	FoldCase bool
	Now      func() time.Time
}

func OptionsFromConfig(cfg config.CacheConfig) Options {
	return Options{
		Capacity: cfg.Capacity,
		TTL:      cfg.TTL,
		Prefix:   cfg.Prefix,
		FoldCase: cfg.FoldCase,
	}
}

type Stats struct {
	Size     int64   `json:"size"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
	Capacity int     `json:"capacity"`
}

// ResponseCache memoizes generated answers with a capacity bound, a TTL and
// least-recently-accessed eviction. Backend failures are logged and treated
// as misses; no method returns them.
type ResponseCache struct {
	backend Backend
	opts    Options

	sizeKey   string
	hitsKey   string
	missesKey string
	lruKey    string
}

func New(backend Backend, opts Options) *ResponseCache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ResponseCache{
		backend:   backend,
		opts:      opts,
		sizeKey:   opts.Prefix + "_meta:size",
		hitsKey:   opts.Prefix + "_meta:hits",
		missesKey: opts.Prefix + "_meta:misses",
		lruKey:    opts.Prefix + "_meta:lru",
	}
}

func (c *ResponseCache) Key(message string, scope map[string]any) string {
	return Key(c.opts.Prefix, message, scope, c.opts.FoldCase)
}

func (c *ResponseCache) tagKey(tag string) string {
	return c.opts.Prefix + "_tag:" + tag
}

// keyTagsKey names the set of tags an entry was stored with.
func (c *ResponseCache) keyTagsKey(key string) string {
	return c.opts.Prefix + "_keytags:" + key
}

// Get returns the cached response and refreshes its recency.
func (c *ResponseCache) Get(ctx context.Context, message string, scope map[string]any) (string, bool) {
	key := c.Key(message, scope)

	val, err := c.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			// An expired entry still sitting in the index is dropped here.
			c.untrack(ctx, key, "expired")
		} else {
			metrics.CacheRequests.WithLabelValues("error").Inc()
			c.logErr("get", err)
		}
		c.count(ctx, c.missesKey)
		return "", false
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()
	c.count(ctx, c.hitsKey)
	// A key evicted after the read above must stay out of the index.
	if err := c.backend.Refresh(ctx, c.lruKey, key, c.opts.Now()); err != nil {
		c.logErr("refresh", err)
	}
	return val, true
}

// Set stores response under the message and context, evicting the least
// recently accessed entries first if the cache is full. Each tag records the
// key for InvalidateTag.
func (c *ResponseCache) Set(ctx context.Context, message, response string, scope map[string]any, tags ...string) {
	key := c.Key(message, scope)

	added, err := c.backend.Touch(ctx, c.lruKey, key, c.opts.Now())
	if err != nil {
		c.logErr("touch", err)
		return
	}
	if added {
		size, err := c.backend.Incr(ctx, c.sizeKey)
		if err != nil {
			c.logErr("incr size", err)
		} else {
			c.evictOverflow(ctx, size, key)
		}
	}

	if err := c.backend.Put(ctx, key, response, c.opts.TTL); err != nil {
		c.logErr("put", err)
		c.untrack(ctx, key, "")
		return
	}

	c.untagAll(ctx, key)
	for _, tag := range tags {
		if err := c.backend.Tag(ctx, c.tagKey(tag), key); err != nil {
			c.logErr("tag", err)
			continue
		}
		if err := c.backend.Tag(ctx, c.keyTagsKey(key), tag); err != nil {
			c.logErr("tag", err)
		}
	}

	// Concurrent writers can push the counter past capacity between the two
	// checks; settle it again now the entry is stored.
	c.evictOverflow(ctx, c.read(ctx, c.sizeKey), key)
}

// evictOverflow removes least recently accessed entries until size is back
// within capacity. keep is never evicted.
func (c *ResponseCache) evictOverflow(ctx context.Context, size int64, keep string) {
	for size > int64(c.opts.Capacity) {
		oldest, ok, err := c.backend.Oldest(ctx, c.lruKey)
		if err != nil {
			c.logErr("oldest", err)
			return
		}
		if !ok || oldest == keep {
			return
		}
		if _, err := c.backend.Forget(ctx, oldest); err != nil {
			c.logErr("forget", err)
		}
		removed, n := c.untrackCount(ctx, oldest)
		if !removed {
			return
		}
		metrics.CacheEvictions.WithLabelValues("lru").Inc()
		size = n
	}
}

func (c *ResponseCache) Invalidate(ctx context.Context, message string, scope map[string]any) {
	c.forget(ctx, c.Key(message, scope))
}

// InvalidateTag forgets every entry stored with tag, then the tag itself, and
// returns how many entries were dropped.
func (c *ResponseCache) InvalidateTag(ctx context.Context, tag string) int {
	tk := c.tagKey(tag)
	members, err := c.backend.TagMembers(ctx, tk)
	if err != nil {
		c.logErr("tag members", err)
		return 0
	}

	dropped := 0
	for _, key := range members {
		if c.forget(ctx, key) {
			dropped++
		}
	}
	if _, err := c.backend.Forget(ctx, tk); err != nil {
		c.logErr("forget tag", err)
	}
	slog.Info("cache tag invalidated", "tag", tag, "entries", dropped)
	return dropped
}

func (c *ResponseCache) forget(ctx context.Context, key string) bool {
	if _, err := c.backend.Forget(ctx, key); err != nil {
		c.logErr("forget", err)
	}
	return c.untrack(ctx, key, "invalidated")
}

// untrack removes key from the recency index and decrements the size counter
// if it was tracked.
func (c *ResponseCache) untrack(ctx context.Context, key, reason string) bool {
	removed, _ := c.untrackCount(ctx, key)
	if removed && reason != "" {
		metrics.CacheEvictions.WithLabelValues(reason).Inc()
	}
	return removed
}

func (c *ResponseCache) untrackCount(ctx context.Context, key string) (bool, int64) {
	removed, err := c.backend.Untouch(ctx, c.lruKey, key)
	if err != nil {
		c.logErr("untouch", err)
		return false, 0
	}
	if !removed {
		return false, 0
	}
	n, err := c.backend.Decr(ctx, c.sizeKey)
	if err != nil {
		c.logErr("decr size", err)
	}
	c.untagAll(ctx, key)
	return true, n
}

// untagAll removes key from every tag set it was stored with.
func (c *ResponseCache) untagAll(ctx context.Context, key string) {
	kt := c.keyTagsKey(key)
	tags, err := c.backend.TagMembers(ctx, kt)
	if err != nil {
		c.logErr("key tags", err)
		return
	}
	if len(tags) == 0 {
		return
	}
	for _, tag := range tags {
		if err := c.backend.Untag(ctx, c.tagKey(tag), key); err != nil {
			c.logErr("untag", err)
		}
	}
	if _, err := c.backend.Forget(ctx, kt); err != nil {
		c.logErr("forget key tags", err)
	}
}

func (c *ResponseCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Size:     max(c.read(ctx, c.sizeKey), 0),
		Hits:     c.read(ctx, c.hitsKey),
		Misses:   c.read(ctx, c.missesKey),
		Capacity: c.opts.Capacity,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = math.Round(float64(s.Hits)/float64(total)*100*100) / 100
	}
	return s
}

func (c *ResponseCache) count(ctx context.Context, key string) {
	if _, err := c.backend.Incr(ctx, key); err != nil {
		c.logErr("incr", err)
	}
}

func (c *ResponseCache) read(ctx context.Context, key string) int64 {
	val, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logErr("read counter", err)
		}
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		c.logErr("parse counter", err)
		return 0
	}
	return n
}

func (c *ResponseCache) logErr(op string, err error) {
	slog.Warn("cache backend error", "op", op, "error", err)
}
