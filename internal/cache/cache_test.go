package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(capacity int, ttl time.Duration) (*ResponseCache, *fakeClock) {
	clock := newFakeClock()
	backend := NewMemoryBackend(clock.Now)
	return New(backend, Options{Capacity: capacity, TTL: ttl, Now: clock.Now}), clock
}

func TestResponseCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)

	c.Set(ctx, "apa itu ppdb", "jawaban X", nil)

	got, ok := c.Get(ctx, "apa itu ppdb", nil)
	require.True(t, ok)
	assert.Equal(t, "jawaban X", got)

	_, ok = c.Get(ctx, "apa itu ppdb", map[string]any{"session": "s1"})
	assert.False(t, ok)
}

func TestResponseCache_TrimButNotCaseFold(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)
	c.Set(ctx, "apa itu ppdb", "jawaban X", nil)

	got, ok := c.Get(ctx, "  apa itu ppdb ", nil)
	require.True(t, ok)
	assert.Equal(t, "jawaban X", got)

	_, ok = c.Get(ctx, "APA ITU PPDB ", nil)
	assert.False(t, ok)
}

func TestResponseCache_FoldCaseOption(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := New(NewMemoryBackend(clock.Now), Options{Capacity: 10, FoldCase: true, Now: clock.Now})
	c.Set(ctx, "apa itu ppdb", "jawaban X", nil)

	got, ok := c.Get(ctx, "APA ITU PPDB ", nil)
	require.True(t, ok)
	assert.Equal(t, "jawaban X", got)
}

func TestResponseCache_CapacityBound(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(5, time.Hour)

	for i := 0; i < 50; i++ {
		clock.Advance(time.Second)
		c.Set(ctx, fmt.Sprintf("question %d", i), "answer", nil)
		assert.LessOrEqual(t, c.Stats(ctx).Size, int64(5))
	}

	live := 0
	for i := 0; i < 50; i++ {
		if _, ok := c.Get(ctx, fmt.Sprintf("question %d", i), nil); ok {
			live++
		}
	}
	assert.Equal(t, 5, live)
	assert.Equal(t, int64(5), c.Stats(ctx).Size)
}

func TestResponseCache_EvictsLeastRecentlyInserted(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(3, time.Hour)

	for _, k := range []string{"A", "B", "C"} {
		clock.Advance(time.Second)
		c.Set(ctx, k, "v"+k, nil)
	}
	clock.Advance(time.Second)
	c.Set(ctx, "D", "vD", nil)

	_, ok := c.Get(ctx, "A", nil)
	assert.False(t, ok)
	for _, k := range []string{"B", "C", "D"} {
		_, ok := c.Get(ctx, k, nil)
		assert.True(t, ok, k)
	}
}

func TestResponseCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(3, time.Hour)

	for _, k := range []string{"A", "B", "C"} {
		clock.Advance(time.Second)
		c.Set(ctx, k, "v"+k, nil)
	}
	clock.Advance(500 * time.Millisecond)
	_, ok := c.Get(ctx, "A", nil)
	require.True(t, ok)

	clock.Advance(500 * time.Millisecond)
	c.Set(ctx, "D", "vD", nil)

	_, ok = c.Get(ctx, "B", nil)
	assert.False(t, ok, "B is least recently accessed")
	for _, k := range []string{"A", "C", "D"} {
		_, ok := c.Get(ctx, k, nil)
		assert.True(t, ok, k)
	}
}

func TestResponseCache_ResetDoesNotGrowSize(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(3, time.Hour)

	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		c.Set(ctx, "same", fmt.Sprintf("v%d", i), nil)
	}

	got, ok := c.Get(ctx, "same", nil)
	require.True(t, ok)
	assert.Equal(t, "v3", got)
	assert.Equal(t, int64(1), c.Stats(ctx).Size)
}

func TestResponseCache_HitRate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)

	s := c.Stats(ctx)
	assert.Equal(t, 0.0, s.HitRate)
	assert.Equal(t, 10, s.Capacity)

	c.Set(ctx, "q", "a", nil)
	for i := 0; i < 3; i++ {
		_, ok := c.Get(ctx, "q", nil)
		require.True(t, ok)
	}
	_, ok := c.Get(ctx, "other", nil)
	require.False(t, ok)

	s = c.Stats(ctx)
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, 75.0, s.HitRate)
}

func TestResponseCache_HitRateRounding(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)
	c.Set(ctx, "q", "a", nil)

	c.Get(ctx, "q", nil)
	c.Get(ctx, "x", nil)
	c.Get(ctx, "y", nil)

	assert.Equal(t, 33.33, c.Stats(ctx).HitRate)
}

func TestResponseCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(10, time.Hour)
	c.Set(ctx, "q", "a", nil)

	clock.Advance(59 * time.Minute)
	_, ok := c.Get(ctx, "q", nil)
	assert.True(t, ok)

	clock.Advance(2 * time.Hour)
	_, ok = c.Get(ctx, "q", nil)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats(ctx).Size, "expired entry leaves the size counter")

	c.Set(ctx, "q", "fresh", nil)
	got, ok := c.Get(ctx, "q", nil)
	require.True(t, ok)
	assert.Equal(t, "fresh", got)
	assert.Equal(t, int64(1), c.Stats(ctx).Size)
}

func TestResponseCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)
	scope := map[string]any{"session": "s1"}
	c.Set(ctx, "q", "a", scope)

	c.Invalidate(ctx, "q", scope)
	c.Invalidate(ctx, "q", scope)

	_, ok := c.Get(ctx, "q", scope)
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Stats(ctx).Size)
}

func TestResponseCache_InvalidateTag(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(10, time.Hour)
	c.Set(ctx, "kapan ppdb dibuka", "Juni", nil, "ppdb")
	clock.Advance(time.Second)
	c.Set(ctx, "syarat ppdb", "Akta", nil, "ppdb", "syarat")
	clock.Advance(time.Second)
	c.Set(ctx, "biaya sekolah", "Gratis", nil, "biaya")

	assert.Equal(t, 2, c.InvalidateTag(ctx, "ppdb"))

	_, ok := c.Get(ctx, "kapan ppdb dibuka", nil)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "syarat ppdb", nil)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "biaya sekolah", nil)
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats(ctx).Size)

	assert.Equal(t, 0, c.InvalidateTag(ctx, "ppdb"))
	assert.Equal(t, 0, c.InvalidateTag(ctx, "syarat"))
}

func TestResponseCache_ConcurrentSets(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(nil), Options{Capacity: 10})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Set(ctx, fmt.Sprintf("w%d-q%d", w, i), "a", nil)
				c.Get(ctx, fmt.Sprintf("w%d-q%d", w, i/2), nil)
			}
		}(w)
	}
	wg.Wait()
	c.Set(ctx, "final", "a", nil)

	s := c.Stats(ctx)
	assert.LessOrEqual(t, s.Size, int64(10))
	assert.Equal(t, int64(8*50), s.Hits+s.Misses)
}

// interleavingBackend runs afterGet once, right after the value of key has
// been read, to interleave another cache call with an in-flight Get.
type interleavingBackend struct {
	*MemoryBackend
	key      string
	afterGet func()
}

func (b *interleavingBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.MemoryBackend.Get(ctx, key)
	if key == b.key && b.afterGet != nil {
		fn := b.afterGet
		b.afterGet = nil
		fn()
	}
	return val, err
}

func TestResponseCache_EvictionDuringGetKeepsCapacity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := &interleavingBackend{MemoryBackend: NewMemoryBackend(clock.Now)}
	c := New(backend, Options{Capacity: 1, TTL: time.Hour, Now: clock.Now})

	c.Set(ctx, "X", "x", nil)
	backend.key = c.Key("X", nil)
	backend.afterGet = func() {
		clock.Advance(time.Second)
		c.Set(ctx, "Y", "y", nil)
	}

	_, ok := c.Get(ctx, "X", nil)
	require.True(t, ok)

	for _, q := range []string{"Z", "W"} {
		clock.Advance(time.Second)
		c.Set(ctx, q, q, nil)
	}

	live := 0
	for _, q := range []string{"X", "Y", "Z", "W"} {
		if _, err := backend.MemoryBackend.Get(ctx, c.Key(q, nil)); err == nil {
			live++
		}
	}
	assert.Equal(t, 1, live)
	assert.Equal(t, int64(1), c.Stats(ctx).Size)
	_, ok = c.Get(ctx, "W", nil)
	assert.True(t, ok)
}

func TestResponseCache_TagSetsFollowEntries(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	backend := NewMemoryBackend(clock.Now)
	c := New(backend, Options{Capacity: 3, TTL: time.Minute, Now: clock.Now})

	for i := 0; i < 1000; i++ {
		c.Set(ctx, fmt.Sprintf("q%d", i), "a", nil, "general")
	}
	members, err := backend.TagMembers(ctx, c.tagKey("general"))
	require.NoError(t, err)
	assert.Len(t, members, 3)

	c.Invalidate(ctx, "q999", nil)
	members, err = backend.TagMembers(ctx, c.tagKey("general"))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	clock.Advance(2 * time.Minute)
	for _, q := range []string{"q997", "q998"} {
		_, ok := c.Get(ctx, q, nil)
		assert.False(t, ok)
	}
	members, err = backend.TagMembers(ctx, c.tagKey("general"))
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, int64(0), c.Stats(ctx).Size)
}

func TestResponseCache_RetaggingReplacesTags(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(10, time.Hour)

	c.Set(ctx, "jadwal ujian", "v1", nil, "rag")
	c.Set(ctx, "jadwal ujian", "v2", nil, "general")

	assert.Equal(t, 0, c.InvalidateTag(ctx, "rag"))
	got, ok := c.Get(ctx, "jadwal ujian", nil)
	require.True(t, ok)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 1, c.InvalidateTag(ctx, "general"))
}

var errBackendDown = errors.New("connection refused")

// brokenBackend fails every call.
type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) (string, error) { return "", errBackendDown }
func (brokenBackend) Put(context.Context, string, string, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) Forget(context.Context, ...string) (int64, error) { return 0, errBackendDown }
func (brokenBackend) Incr(context.Context, string) (int64, error) { return 0, errBackendDown }
func (brokenBackend) Decr(context.Context, string) (int64, error) { return 0, errBackendDown }
func (brokenBackend) Touch(context.Context, string, string, time.Time) (bool, error) {
	return false, errBackendDown
}
func (brokenBackend) Refresh(context.Context, string, string, time.Time) error {
	return errBackendDown
}
func (brokenBackend) Oldest(context.Context, string) (string, bool, error) {
	return "", false, errBackendDown
}
func (brokenBackend) Untouch(context.Context, string, string) (bool, error) {
	return false, errBackendDown
}
func (brokenBackend) Tag(context.Context, string, string) error { return errBackendDown }
func (brokenBackend) Untag(context.Context, string, ...string) error {
	return errBackendDown
}
func (brokenBackend) TagMembers(context.Context, string) ([]string, error) {
	return nil, errBackendDown
}

func TestResponseCache_BackendErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	c := New(brokenBackend{}, Options{Capacity: 3})

	assert.NotPanics(t, func() {
		c.Set(ctx, "q", "a", nil, "tag")
		c.Invalidate(ctx, "q", nil)
	})
	_, ok := c.Get(ctx, "q", nil)
	assert.False(t, ok)
	assert.Equal(t, 0, c.InvalidateTag(ctx, "tag"))
	assert.Equal(t, Stats{Capacity: 3}, c.Stats(ctx))
}
