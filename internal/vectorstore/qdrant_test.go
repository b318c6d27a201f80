package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrant implements the handful of collection and point endpoints the
// store uses, keeping points in memory.
type fakeQdrant struct {
	mu      sync.Mutex
	size    int
	created bool
	points  []qdrantPoint
}

type fakeFilter struct {
	Must []struct {
		Key   string `json:"key"`
		Match struct {
			Value any `json:"value"`
		} `json:"match"`
	} `json:"must"`
}

func (f fakeFilter) matches(p qdrantPayload) bool {
	for _, m := range f.Must {
		switch m.Key {
		case "document_id":
			if p.DocumentID != m.Match.Value {
				return false
			}
		case "is_active":
			if p.IsActive != m.Match.Value {
				return false
			}
		}
	}
	return true
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	write := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": v, "status": "ok"})
	}
	path := strings.TrimPrefix(r.URL.Path, "/collections/test")

	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.created {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		write(map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": f.size, "distance": "Cosine"},
		}}})
	case path == "" && r.Method == http.MethodPut:
		var body struct {
			Vectors struct {
				Size int `json:"size"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.created {
			http.Error(w, `{"status":{"error":"already exists"}}`, http.StatusConflict)
			return
		}
		f.created, f.size = true, body.Vectors.Size
		write(true)
	case path == "/points" && r.Method == http.MethodPut:
		var body struct {
			Points []qdrantPoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		write(map[string]any{"status": "completed"})
	case path == "/points/delete":
		var body struct {
			Filter fakeFilter `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		kept := f.points[:0]
		for _, p := range f.points {
			if !body.Filter.matches(p.Payload) {
				kept = append(kept, p)
			}
		}
		f.points = kept
		write(map[string]any{"status": "completed"})
	case path == "/points/count":
		var body struct {
			Filter fakeFilter `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		n := 0
		for _, p := range f.points {
			if body.Filter.matches(p.Payload) {
				n++
			}
		}
		write(map[string]any{"count": n})
	case path == "/points/payload":
		var body struct {
			Payload struct {
				IsActive bool `json:"is_active"`
			} `json:"payload"`
			Filter fakeFilter `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for i := range f.points {
			if body.Filter.matches(f.points[i].Payload) {
				f.points[i].Payload.IsActive = body.Payload.IsActive
			}
		}
		write(map[string]any{"status": "completed"})
	case path == "/points/search":
		var body struct {
			Vector         []float32  `json:"vector"`
			Limit          int        `json:"limit"`
			ScoreThreshold float64    `json:"score_threshold"`
			Filter         fakeFilter `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		var hits []map[string]any
		// Reverse order so the client has to restore the tie-break itself.
		for i := len(f.points) - 1; i >= 0; i-- {
			p := f.points[i]
			score := Cosine(body.Vector, p.Vector)
			if !body.Filter.matches(p.Payload) || score < body.ScoreThreshold {
				continue
			}
			hits = append(hits, map[string]any{"id": p.ID, "score": score, "payload": p.Payload})
		}
		if len(hits) > body.Limit {
			hits = hits[:body.Limit]
		}
		write(hits)
	default:
		http.NotFound(w, r)
	}
}

func newQdrantStore(t *testing.T, dim int) (*QdrantStore, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s := NewQdrantStore(QdrantConfig{URL: srv.URL, Collection: "test", Dimension: dim})
	require.NoError(t, s.EnsureCollection(context.Background()))
	return s, fake
}

func TestQdrantStore_EnsureCollection(t *testing.T) {
	s, fake := newQdrantStore(t, 3)

	assert.True(t, fake.created)
	assert.Equal(t, 3, fake.size)
	assert.NoError(t, s.EnsureCollection(context.Background()))

	other := NewQdrantStore(QdrantConfig{URL: s.url, Collection: "test", Dimension: 5})
	assert.ErrorIs(t, other.EnsureCollection(context.Background()), ErrDimensionMismatch)
}

func TestQdrantStore_UpsertReplacesAndSearches(t *testing.T) {
	ctx := context.Background()
	s, fake := newQdrantStore(t, 2)
	doc := testDoc("Biaya sekolah")

	require.NoError(t, s.Upsert(ctx, doc, []ChunkInput{
		{Content: "old", Embedding: []float32{0, 1}},
	}))
	require.NoError(t, s.Upsert(ctx, doc, []ChunkInput{
		{Content: "tie-1", Embedding: []float32{1, 0}},
		{Content: "tie-2", Embedding: []float32{1, 0}},
		{Content: "far", Embedding: []float32{0, 1}},
	}))
	assert.Len(t, fake.points, 3)

	results, err := s.Search(ctx, []float32{1, 0}, SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tie-1", results[0].Chunk.Content)
	assert.Equal(t, "tie-2", results[1].Chunk.Content)
	assert.Equal(t, "Biaya sekolah", results[0].Title)
	assert.Equal(t, doc.ID, results[0].Chunk.DocumentID)
}

func TestQdrantStore_RejectsDimensionMismatch(t *testing.T) {
	s, fake := newQdrantStore(t, 2)

	err := s.Upsert(context.Background(), testDoc("x"), []ChunkInput{{Content: "a", Embedding: []float32{1, 2, 3}}})

	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Empty(t, fake.points)
}

func TestQdrantStore_ActiveFlagAndDelete(t *testing.T) {
	ctx := context.Background()
	s, fake := newQdrantStore(t, 2)
	doc := testDoc("Jadwal ujian")
	require.NoError(t, s.Upsert(ctx, doc, []ChunkInput{{Content: "ujian", Embedding: []float32{1, 0}}}))

	require.NoError(t, s.SetDocumentActive(ctx, doc.ID, false))
	results, err := s.Search(ctx, []float32{1, 0}, SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))
	assert.Empty(t, fake.points)
	assert.ErrorIs(t, s.DeleteDocument(ctx, doc.ID), ErrDocumentNotFound)
	assert.ErrorIs(t, s.SetDocumentActive(ctx, uuid.New(), true), ErrDocumentNotFound)
}
