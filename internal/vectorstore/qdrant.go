package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// QdrantStore is a minimal REST client for one Qdrant collection using cosine
// distance. Document title, category and active flag travel in each point's
// payload.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
	seq        atomic.Int64
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &QdrantStore{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
	s.seq.Store(time.Now().UnixNano())
	return s
}

func (s *QdrantStore) Mode() Mode { return ModeNative }
func (s *QdrantStore) Dimension() int { return s.dimension }
func (s *QdrantStore) Close() error { return nil }

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	size, found, err := s.collectionSize(ctx)
	if err != nil {
		return err
	}
	if !found {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimension,
				"distance": "Cosine",
			},
		}
		status, err := s.do(ctx, http.MethodPut, s.path(""), body, nil)
		// 409 means a concurrent creator got there first.
		if err != nil && status != http.StatusConflict {
			return fmt.Errorf("create collection: %w", err)
		}
		if size, found, err = s.collectionSize(ctx); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("collection %s missing after create", s.collection)
		}
	}

	if size != s.dimension {
		return fmt.Errorf("collection %s: %w: created with %d, configured %d", s.collection, ErrDimensionMismatch, size, s.dimension)
	}
	slog.Info("vector collection ready", "backend", "qdrant", "collection", s.collection, "dimension", size)
	return nil
}

func (s *QdrantStore) collectionSize(ctx context.Context) (int, bool, error) {
	var info qdrantCollectionInfo
	status, err := s.do(ctx, http.MethodGet, s.path(""), nil, &info)
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get collection: %w", err)
	}
	return info.Result.Config.Params.Vectors.Size, true, nil
}

type qdrantPayload struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	IsActive   bool   `json:"is_active"`
	Seq        int64  `json:"seq"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

func (s *QdrantStore) Upsert(ctx context.Context, doc models.Document, chunks []ChunkInput) error {
	if err := validate(s.dimension, chunks); err != nil {
		return err
	}

	if err := s.deleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(chunks))
	for i, c := range chunks {
		points[i] = qdrantPoint{
			ID:     uuid.NewString(),
			Vector: c.Embedding,
			Payload: qdrantPayload{
				DocumentID: doc.ID.String(),
				ChunkIndex: i,
				Content:    c.Content,
				TokenCount: c.TokenCount,
				Title:      doc.Title,
				Category:   doc.Category,
				IsActive:   doc.IsActive,
				Seq:        s.seq.Add(1),
			},
		}
	}
	if _, err := s.do(ctx, http.MethodPut, s.path("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

type qdrantSearchResp struct {
	Result []struct {
		ID      any           `json:"id"`
		Score   float64       `json:"score"`
		Payload qdrantPayload `json:"payload"`
	} `json:"result"`
}

func (s *QdrantStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("search: %w: got %d, collection has %d", ErrDimensionMismatch, len(query), s.dimension)
	}
	opts = opts.withDefaults()
	if isZero(query) {
		return []SearchResult{}, nil
	}

	req := map[string]any{
		"vector":          query,
		"limit":           opts.TopK,
		"with_payload":    true,
		"score_threshold": opts.threshold(),
		"filter":          matchFilter("is_active", true),
	}
	var resp qdrantSearchResp
	if _, err := s.do(ctx, http.MethodPost, s.path("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Score < opts.threshold() {
			continue
		}
		docID, err := uuid.Parse(r.Payload.DocumentID)
		if err != nil {
			slog.Warn("qdrant point with invalid document_id", "id", r.ID, "document_id", r.Payload.DocumentID)
			continue
		}
		var chunkID uuid.UUID
		if id, ok := r.ID.(string); ok {
			chunkID, _ = uuid.Parse(id)
		}
		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:         chunkID,
				DocumentID: docID,
				ChunkIndex: r.Payload.ChunkIndex,
				Content:    r.Payload.Content,
				TokenCount: r.Payload.TokenCount,
				Seq:        r.Payload.Seq,
			},
			Title:      r.Payload.Title,
			Category:   r.Payload.Category,
			Similarity: r.Score,
		})
	}
	sortResults(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *QdrantStore) SetDocumentActive(ctx context.Context, documentID uuid.UUID, active bool) error {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return err
	}
	body := map[string]any{
		"payload": map[string]any{"is_active": active},
		"filter":  matchFilter("document_id", documentID.String()),
	}
	if _, err := s.do(ctx, http.MethodPost, s.path("/points/payload?wait=true"), body, nil); err != nil {
		return fmt.Errorf("set document active: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	if err := s.requireDocument(ctx, documentID); err != nil {
		return err
	}
	return s.deleteByDocument(ctx, documentID)
}

func (s *QdrantStore) deleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	body := map[string]any{"filter": matchFilter("document_id", documentID.String())}
	if _, err := s.do(ctx, http.MethodPost, s.path("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (s *QdrantStore) requireDocument(ctx context.Context, documentID uuid.UUID) error {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	body := map[string]any{
		"filter": matchFilter("document_id", documentID.String()),
		"exact":  true,
	}
	if _, err := s.do(ctx, http.MethodPost, s.path("/points/count"), body, &resp); err != nil {
		return fmt.Errorf("count points: %w", err)
	}
	if resp.Result.Count == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	return nil
}

func matchFilter(key string, value any) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{"key": key, "match": map[string]any{"value": value}},
		},
	}
}

func (s *QdrantStore) path(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The HTTP status is returned even on error so callers can branch on 404/409.
func (s *QdrantStore) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s: %s: %s", method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
