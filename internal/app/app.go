package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/schoolrag/internal/cache"
	"github.com/nikhilbhutani/schoolrag/internal/chat"
	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/database"
	"github.com/nikhilbhutani/schoolrag/internal/embedding"
	"github.com/nikhilbhutani/schoolrag/internal/guardrails"
	"github.com/nikhilbhutani/schoolrag/internal/llm"
	"github.com/nikhilbhutani/schoolrag/internal/memory"
	"github.com/nikhilbhutani/schoolrag/internal/metrics"
	"github.com/nikhilbhutani/schoolrag/internal/rag"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
	"github.com/nikhilbhutani/schoolrag/pkg/chunker"
)

// App holds the wired services shared by the API server and the worker.
// Pool and Redis are nil when the respective backend is not reachable.
type App struct {
	Config       *config.Config
	Pool         *pgxpool.Pool
	Redis        *redis.Client
	Cache        *cache.ResponseCache
	Embedder     *embedding.Service
	Store        vectorstore.Store
	Sources      []rag.RecordSource
	Guard        *guardrails.Pipeline
	Engine       *rag.Engine
	Indexer      *rag.Indexer
	Chain        *llm.Chain
	Sessions     memory.Store
	Orchestrator *chat.Orchestrator

	records *rag.RecordsWatcher
	closers []func()
}

// New connects the optional backends and wires every service. Only a vector
// store that cannot be opened is fatal; Postgres and Redis degrade to the
// embedded store and in-process cache.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	metrics.Init()
	a := &App{Config: cfg}

	pool, err := database.Open(ctx, cfg.Database)
	switch {
	case errors.Is(err, database.ErrNotConfigured):
		slog.Info("no database configured")
	case err != nil:
		slog.Warn("database unavailable, running without it", "error", err)
	default:
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)
	}

	a.Redis = connectRedis(ctx, cfg.Redis)
	var backend cache.Backend
	if a.Redis != nil {
		backend = cache.NewRedisBackend(a.Redis)
		a.Sessions = memory.NewRedisStore(a.Redis, memory.DefaultMaxEntries, memory.DefaultSessionTTL)
		rdb := a.Redis
		a.closers = append(a.closers, func() { rdb.Close() })
	} else {
		backend = cache.NewMemoryBackend(nil)
		a.Sessions = memory.NewBufferStore(memory.DefaultMaxEntries)
	}
	a.Cache = cache.New(backend, cache.OptionsFromConfig(cfg.Cache))

	provider, err := embedding.New(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	a.Embedder = embedding.NewService(provider)

	store, err := vectorstore.Open(ctx, cfg.VectorStore, cfg.Embedding.Dimension, a.Pool)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("vector store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, func() { store.Close() })

	a.Sources, err = a.recordSources(store, cfg.Retrieval)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Guard = guardrails.DefaultPipeline(cfg.Retrieval.MaxInputChars)
	a.Engine = rag.NewEngine(rag.EngineConfig{
		Embedder:      a.Embedder,
		Store:         store,
		Sources:       a.Sources,
		QuickAnswers:  rag.QuickAnswersFor(a.Sources),
		Guard:         a.Guard,
		TopK:          cfg.Retrieval.TopK,
		MinSimilarity: vectorstore.Threshold(cfg.VectorStore.MinSimilarity),
	})

	a.Indexer = rag.NewIndexer(a.Embedder, store, chunker.DefaultOptions())
	a.Indexer.OnChange(a.invalidateRetrieval)
	if a.records != nil {
		a.records.OnReload(a.invalidateRetrieval)
	}

	a.Chain = llm.NewChainFromConfig(cfg.LLM)
	a.Orchestrator = chat.NewOrchestrator(chat.Config{
		Cache:     a.Cache,
		Retriever: a.Engine,
		Prompts:   memory.NewContextEngine("", cfg.Retrieval.HistoryTokenBudget),
		Generator: a.Chain,
		Output:    a.Guard,
		Sessions:  a.Sessions,
		TopK:      cfg.Retrieval.TopK,
		Options:   llm.Options{MaxTokens: cfg.LLM.MaxTokens, Temperature: cfg.LLM.Temperature},
	})

	slog.Info("services ready",
		"vector_mode", store.Mode(),
		"embedding", provider.Name(),
		"providers", a.Chain.Names(),
		"record_sources", len(a.Sources),
		"redis", a.Redis != nil,
		"database", a.Pool != nil,
	)
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unavailable, using in-process cache", "error", err)
		rdb.Close()
		return nil
	}
	return rdb
}

func (a *App) invalidateRetrieval(ctx context.Context) {
	if n := a.Cache.InvalidateTag(ctx, chat.TagRetrieval); n > 0 {
		slog.Info("cached answers invalidated", "tag", chat.TagRetrieval, "count", n)
	}
}

// recordSources exposes stored documents to keyword search, plus one source
// per record kind in the optional records file. With WatchRecords the file is
// reloaded in the background for the life of the App.
func (a *App) recordSources(store vectorstore.Store, cfg config.RetrievalConfig) ([]rag.RecordSource, error) {
	var sources []rag.RecordSource
	if lister, ok := store.(vectorstore.DocumentLister); ok {
		sources = append(sources, rag.NewDocumentSource(lister))
	}
	if cfg.RecordsPath == "" {
		return sources, nil
	}
	loaded, err := rag.LoadRecords(cfg.RecordsPath)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	for _, s := range loaded {
		sources = append(sources, s)
	}

	if cfg.WatchRecords {
		rw, err := rag.NewRecordsWatcher(cfg.RecordsPath, loaded)
		if err != nil {
			slog.Warn("records file will not be reloaded", "error", err)
			return sources, nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		go rw.Run(ctx)
		a.records = rw
		a.closers = append(a.closers, func() {
			cancel()
			rw.Close()
		})
	}
	return sources, nil
}
