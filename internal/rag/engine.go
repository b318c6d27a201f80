package rag

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/schoolrag/internal/metrics"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
)

const (
	SourceKeyword     = "keyword"
	SourceVector      = "vector"
	SourceQuickAnswer = "quick_answer"

	DefaultTopK           = 5
	DefaultPerSourceLimit = 3
)

// ContextChunk is one retrieved piece of content handed to answer generation.
type ContextChunk struct {
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Source     string  `json:"source"`
}

// Embedder is the part of the embedding service retrieval needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Available(ctx context.Context) bool
}

// InputChecker may block a question before any lookup runs.
type InputChecker interface {
	CheckInput(ctx context.Context, text string) error
}

type EngineConfig struct {
	Embedder       Embedder
	Store          vectorstore.Store
	Sources        []RecordSource
	QuickAnswers   *QuickAnswers
	Guard          InputChecker
	TopK           int
	MinSimilarity  *float64 // nil uses the store default
	PerSourceLimit int
}

// Engine merges quick answers, keyword hits over structured records and
// vector hits into one ranked list. Only a guard rejection is returned as an
// error; lookup failures degrade to fewer results.
type Engine struct {
	embedder       Embedder
	store          vectorstore.Store
	sources        []RecordSource
	quick          *QuickAnswers
	guard          InputChecker
	topK           int
	minSimilarity  *float64
	perSourceLimit int
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.PerSourceLimit <= 0 {
		cfg.PerSourceLimit = DefaultPerSourceLimit
	}
	return &Engine{
		embedder:       cfg.Embedder,
		store:          cfg.Store,
		sources:        cfg.Sources,
		quick:          cfg.QuickAnswers,
		guard:          cfg.Guard,
		topK:           cfg.TopK,
		minSimilarity:  cfg.MinSimilarity,
		perSourceLimit: cfg.PerSourceLimit,
	}
}

// Retrieve returns at most topK chunks for query, best first. topK <= 0 uses
// the engine default.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = e.topK
	}

	if e.guard != nil {
		if err := e.guard.CheckInput(ctx, query); err != nil {
			return nil, err
		}
	}

	if e.quick != nil {
		if hit, ok := e.quick.Lookup(ctx, query); ok {
			metrics.RetrievalHits.WithLabelValues(SourceQuickAnswer).Observe(1)
			return []ContextChunk{hit}, nil
		}
	}

	start := time.Now()
	var keywordHits, vectorHits []ContextChunk

	// Both searches swallow their own errors, so Wait never fails and the
	// merge order does not depend on which finishes first.
	var g errgroup.Group
	g.Go(func() error {
		keywordHits = e.keywordSearch(ctx, query)
		return nil
	})
	g.Go(func() error {
		vectorHits = e.vectorSearch(ctx, query, topK)
		return nil
	})
	_ = g.Wait()

	metrics.RetrievalHits.WithLabelValues(SourceKeyword).Observe(float64(len(keywordHits)))
	metrics.RetrievalHits.WithLabelValues(SourceVector).Observe(float64(len(vectorHits)))

	merged := Merge(keywordHits, vectorHits, topK)
	slog.Debug("retrieval done",
		"keyword_hits", len(keywordHits),
		"vector_hits", len(vectorHits),
		"returned", len(merged),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return merged, nil
}

// Merge concatenates keyword hits then vector hits, stable-sorts by score
// descending and keeps the first topK. Scores are compared as-is.
func Merge(keywordHits, vectorHits []ContextChunk, topK int) []ContextChunk {
	merged := make([]ContextChunk, 0, len(keywordHits)+len(vectorHits))
	merged = append(merged, keywordHits...)
	merged = append(merged, vectorHits...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func (e *Engine) keywordSearch(ctx context.Context, query string) []ContextChunk {
	keywords := Keywords(query)
	if len(keywords) == 0 {
		return nil
	}

	var hits []ContextChunk
	for _, src := range e.sources {
		found, err := searchSource(ctx, src, keywords, e.perSourceLimit)
		if err != nil {
			slog.Warn("keyword search failed", "source", src.Name(), "error", err)
			continue
		}
		hits = append(hits, found...)
	}
	return hits
}

func (e *Engine) vectorSearch(ctx context.Context, query string, topK int) []ContextChunk {
	if e.embedder == nil || e.store == nil {
		return nil
	}
	if !e.embedder.Available(ctx) {
		slog.Info("embedding provider unavailable, skipping vector search")
		return nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed", "error", err)
		return nil
	}

	results, err := e.store.Search(ctx, vec, vectorstore.SearchOptions{
		TopK:          topK,
		MinSimilarity: e.minSimilarity,
	})
	if err != nil {
		slog.Warn("vector search failed", "error", err)
		return nil
	}

	hits := make([]ContextChunk, len(results))
	for i, r := range results {
		hits[i] = ContextChunk{
			Title:      r.Title,
			Category:   r.Category,
			Content:    r.Chunk.Content,
			Similarity: r.Similarity,
			Source:     SourceVector,
		}
	}
	return hits
}
