package cache

import (
	"container/heap"
	"context"
	"strconv"
	"sync"
	"time"
)

type memItem struct {
	value     string
	expiresAt time.Time
}

// MemoryBackend is an in-process Backend used when Redis is not configured
// and in tests. Expiry is checked on read against the injected clock.
type MemoryBackend struct {
	mu      sync.Mutex
	now     func() time.Time
	items   map[string]memItem
	indexes map[string]*recencyIndex
	tags    map[string]map[string]struct{}
}

func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		now:     now,
		items:   make(map[string]memItem),
		indexes: make(map[string]*recencyIndex),
		tags:    make(map[string]map[string]struct{}),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	it, ok := b.lookup(key)
	if !ok {
		return "", ErrNotFound
	}
	return it.value, nil
}

// lookup drops the item if it has expired. Callers hold mu.
func (b *MemoryBackend) lookup(key string) (memItem, bool) {
	it, ok := b.items[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expiresAt.IsZero() && !b.now().Before(it.expiresAt) {
		delete(b.items, key)
		return memItem{}, false
	}
	return it, true
}

func (b *MemoryBackend) Put(_ context.Context, key, value string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	it := memItem{value: value}
	if ttl > 0 {
		it.expiresAt = b.now().Add(ttl)
	}
	b.items[key] = it
	return nil
}

func (b *MemoryBackend) Forget(_ context.Context, keys ...string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := b.lookup(k); ok {
			n++
		}
		delete(b.items, k)
		if _, ok := b.tags[k]; ok {
			delete(b.tags, k)
			n++
		}
	}
	return n, nil
}

func (b *MemoryBackend) Incr(_ context.Context, key string) (int64, error) {
	return b.add(key, 1)
}

func (b *MemoryBackend) Decr(_ context.Context, key string) (int64, error) {
	return b.add(key, -1)
}

func (b *MemoryBackend) add(key string, delta int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var n int64
	if it, ok := b.lookup(key); ok {
		v, err := strconv.ParseInt(it.value, 10, 64)
		if err != nil {
			return 0, err
		}
		n = v
	}
	n += delta
	b.items[key] = memItem{value: strconv.FormatInt(n, 10)}
	return n, nil
}

func (b *MemoryBackend) Touch(_ context.Context, index, key string, at time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[index]
	if !ok {
		idx = newRecencyIndex()
		b.indexes[index] = idx
	}
	return idx.touch(key, at), nil
}

func (b *MemoryBackend) Refresh(_ context.Context, index, key string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[index]; ok {
		idx.refresh(key, at)
	}
	return nil
}

func (b *MemoryBackend) Oldest(_ context.Context, index string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[index]
	if !ok || idx.Len() == 0 {
		return "", false, nil
	}
	return idx.entries[0].key, true, nil
}

func (b *MemoryBackend) Untouch(_ context.Context, index, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.indexes[index]
	if !ok {
		return false, nil
	}
	return idx.remove(key), nil
}

func (b *MemoryBackend) Tag(_ context.Context, tag, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.tags[tag]
	if !ok {
		set = make(map[string]struct{})
		b.tags[tag] = set
	}
	set[key] = struct{}{}
	return nil
}

func (b *MemoryBackend) Untag(_ context.Context, tag string, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.tags[tag]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(set, k)
	}
	if len(set) == 0 {
		delete(b.tags, tag)
	}
	return nil
}

func (b *MemoryBackend) TagMembers(_ context.Context, tag string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.tags[tag]
	members := make([]string, 0, len(set))
	for k := range set {
		members = append(members, k)
	}
	return members, nil
}

// recencyIndex is a min-heap on access time. seq breaks ties so equal
// timestamps evict in touch order.
type recencyIndex struct {
	entries []*recencyEntry
	byKey   map[string]*recencyEntry
	seq     uint64
}

type recencyEntry struct {
	key string
	at  time.Time
	seq uint64
	pos int
}

func newRecencyIndex() *recencyIndex {
	return &recencyIndex{byKey: make(map[string]*recencyEntry)}
}

func (r *recencyIndex) touch(key string, at time.Time) bool {
	if r.refresh(key, at) {
		return false
	}
	r.seq++
	e := &recencyEntry{key: key, at: at, seq: r.seq}
	r.byKey[key] = e
	heap.Push(r, e)
	return true
}

// refresh moves an indexed key to at and reports whether it was indexed.
func (r *recencyIndex) refresh(key string, at time.Time) bool {
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	r.seq++
	e.at, e.seq = at, r.seq
	heap.Fix(r, e.pos)
	return true
}

func (r *recencyIndex) remove(key string) bool {
	e, ok := r.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(r, e.pos)
	delete(r.byKey, key)
	return true
}

func (r *recencyIndex) Len() int { return len(r.entries) }

func (r *recencyIndex) Less(i, j int) bool {
	a, b := r.entries[i], r.entries[j]
	if !a.at.Equal(b.at) {
		return a.at.Before(b.at)
	}
	return a.seq < b.seq
}

func (r *recencyIndex) Swap(i, j int) {
	r.entries[i], r.entries[j] = r.entries[j], r.entries[i]
	r.entries[i].pos = i
	r.entries[j].pos = j
}

func (r *recencyIndex) Push(x any) {
	e := x.(*recencyEntry)
	e.pos = len(r.entries)
	r.entries = append(r.entries, e)
}

func (r *recencyIndex) Pop() any {
	old := r.entries
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	r.entries = old[:n-1]
	return e
}
