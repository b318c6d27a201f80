package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxEntries = 20
	DefaultSessionTTL = 24 * time.Hour
)

// Entry is a single turn of a conversation.
type Entry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps recent conversation turns per session.
type Store interface {
	Append(ctx context.Context, session string, entries ...Entry) error
	Recent(ctx context.Context, session string, limit int) ([]Entry, error)
}

// BufferStore keeps the last maxEntries turns of each session in process.
type BufferStore struct {
	mu         sync.RWMutex
	sessions   map[string][]Entry
	maxEntries int
}

func NewBufferStore(maxEntries int) *BufferStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &BufferStore{sessions: make(map[string][]Entry), maxEntries: maxEntries}
}

func (s *BufferStore) Append(_ context.Context, session string, entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.sessions[session], stamp(entries)...)
	if len(buf) > s.maxEntries {
		buf = buf[len(buf)-s.maxEntries:]
	}
	s.sessions[session] = buf
	return nil
}

func (s *BufferStore) Recent(_ context.Context, session string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.sessions[session]
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	out := make([]Entry, limit)
	copy(out, buf[len(buf)-limit:])
	return out, nil
}

// RedisStore keeps each session as a capped list that expires after ttl of
// inactivity.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxEntries int
	ttl        time.Duration
}

func NewRedisStore(client *redis.Client, maxEntries int, ttl time.Duration) *RedisStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, prefix: "chat:session:", maxEntries: maxEntries, ttl: ttl}
}

func (s *RedisStore) Append(ctx context.Context, session string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, 0, len(entries))
	for _, e := range stamp(entries) {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		values = append(values, raw)
	}

	key := s.prefix + session
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxEntries), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session %s: %w", session, err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}
	raw, err := s.client.LRange(ctx, s.prefix+session, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", session, err)
	}
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", session, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func stamp(entries []Entry) []Entry {
	now := time.Now()
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		out[i] = e
	}
	return out
}
