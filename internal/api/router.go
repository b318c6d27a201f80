package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/schoolrag/internal/api/handlers"
	"github.com/nikhilbhutani/schoolrag/internal/api/middleware"
	"github.com/nikhilbhutani/schoolrag/internal/cache"
	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/metrics"
)

// Deps are the services the HTTP layer calls into. Documents may be nil when
// no job queue is available; the document routes are then not mounted.
type Deps struct {
	Answerer  handlers.Answerer
	Retriever handlers.Retriever
	Cache     *cache.ResponseCache
	Documents handlers.DocumentQueue
	Checks    map[string]handlers.Check
}

type Router struct {
	mux     *chi.Mux
	deps    Deps
	cfg     config.ServerConfig
	limiter *middleware.RateLimiter
}

func NewRouter(deps Deps, cfg config.ServerConfig) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		deps:    deps,
		cfg:     cfg,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst),
	}
}

// Close stops background work owned by the router.
func (rt *Router) Close() {
	rt.limiter.Close()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.limiter.Limit)

		chatH := handlers.NewChatHandler(rt.deps.Answerer)
		r.Post("/chat", chatH.Chat)

		retrieveH := handlers.NewRetrieveHandler(rt.deps.Retriever)
		r.Post("/retrieve", retrieveH.Retrieve)

		if rt.deps.Cache != nil {
			cacheH := handlers.NewCacheHandler(rt.deps.Cache)
			r.Route("/cache", func(r chi.Router) {
				r.Get("/stats", cacheH.Stats)
				r.Delete("/tags/{tag}", cacheH.InvalidateTag)
			})
		}

		if rt.deps.Documents != nil {
			docH := handlers.NewDocumentHandler(rt.deps.Documents)
			r.Route("/documents", func(r chi.Router) {
				r.Post("/", docH.Index)
				r.Delete("/{id}", docH.Delete)
			})
		}
	})

	return r
}
