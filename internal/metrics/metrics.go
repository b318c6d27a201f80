package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolrag_cache_requests_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	CacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolrag_cache_evictions_total",
			Help: "Response cache removals by reason",
		},
		[]string{"reason"}, // lru, expired, invalidated
	)

	EmbeddingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schoolrag_embedding_duration_seconds",
			Help:    "Embedding request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "status"},
	)

	ProviderAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schoolrag_generation_attempts_total",
			Help: "Answer generation attempts by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	RetrievalHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "schoolrag_retrieval_hits",
			Help:    "Number of hits per retrieval by source",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
		[]string{"source"}, // keyword, vector, quick_answer
	)

	VectorStoreMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "schoolrag_vectorstore_mode",
			Help: "Active vector store backend and mode (1 = active)",
		},
		[]string{"mode"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CacheRequests,
			CacheEvictions,
			EmbeddingDuration,
			ProviderAttempts,
			RetrievalHits,
			VectorStoreMode,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
