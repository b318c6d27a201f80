package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Cache       CacheConfig
	LLM         LLMConfig
	Retrieval   RetrievalConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS float64
	RateBurst    int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty uses the migrations embedded in the binary
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EmbeddingConfig struct {
	Backend      string // "openai" or "ollama"
	BaseURL      string
	APIKey       string
	Model        string
	Dimension    int
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

type VectorStoreConfig struct {
	Backend       string // "auto", "pgvector", "postgres", "qdrant", "sqlite"
	Collection    string
	QdrantURL     string
	QdrantAPIKey  string
	SQLitePath    string
	MinSimilarity float64
}

type CacheConfig struct {
	Capacity int
	TTL      time.Duration
	Prefix   string
	FoldCase bool
}

type LLMConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	SelfHostedURL   string
	SelfHostedModel string
	MaxTokens       int
	Temperature     float64
	Timeout         time.Duration
}

type RetrievalConfig struct {
	TopK               int
	MaxInputChars      int // 0 disables the question length guard
	HistoryTokenBudget int
	RecordsPath        string // YAML file of structured site records, optional
	WatchRecords       bool   // reload RecordsPath when it changes
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	port := intVar(&errs, "SERVER_PORT", 8080)
	rps := floatVar(&errs, "RATE_LIMIT_RPS", 10)
	burst := intVar(&errs, "RATE_LIMIT_BURST", 20)
	maxConns := intVar(&errs, "DB_MAX_CONNS", 10)
	minConns := intVar(&errs, "DB_MIN_CONNS", 2)
	redisDB := intVar(&errs, "REDIS_DB", 0)
	dim := intVar(&errs, "EMBEDDING_DIMENSION", 768)
	embedTimeout := durationVar(&errs, "EMBEDDING_TIMEOUT", 30*time.Second)
	probeTimeout := durationVar(&errs, "EMBEDDING_PROBE_TIMEOUT", 2*time.Second)
	minSim := floatVar(&errs, "VECTOR_MIN_SIMILARITY", 0.5)
	capacity := intVar(&errs, "CACHE_CAPACITY", 500)
	ttl := durationVar(&errs, "CACHE_TTL", time.Hour)
	foldCase := boolVar(&errs, "CACHE_FOLD_CASE", false)
	maxTokens := intVar(&errs, "LLM_MAX_TOKENS", 1024)
	temperature := floatVar(&errs, "LLM_TEMPERATURE", 0.3)
	chatTimeout := durationVar(&errs, "LLM_TIMEOUT", 90*time.Second)
	topK := intVar(&errs, "RETRIEVAL_TOP_K", 5)
	maxInput := intVar(&errs, "GUARDRAIL_MAX_INPUT_CHARS", 2000)
	historyBudget := intVar(&errs, "HISTORY_TOKEN_BUDGET", 1500)
	watchRecords := boolVar(&errs, "RECORDS_WATCH", true)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}

	embedBackend := getEnv("EMBEDDING_BACKEND", "ollama")
	embedBaseURL := getEnv("EMBEDDING_BASE_URL", "")
	if embedBaseURL == "" {
		if embedBackend == "openai" {
			embedBaseURL = "https://api.openai.com/v1"
		} else {
			embedBaseURL = "http://localhost:11434"
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         port,
			RateLimitRPS: rps,
			RateBurst:    burst,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Embedding: EmbeddingConfig{
			Backend:      embedBackend,
			BaseURL:      embedBaseURL,
			APIKey:       getEnv("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:        getEnv("EMBEDDING_MODEL", ""),
			Dimension:    dim,
			Timeout:      embedTimeout,
			ProbeTimeout: probeTimeout,
		},
		VectorStore: VectorStoreConfig{
			Backend:       getEnv("VECTOR_BACKEND", "auto"),
			Collection:    getEnv("VECTOR_COLLECTION", "school_chunks"),
			QdrantURL:     getEnv("QDRANT_URL", ""),
			QdrantAPIKey:  getEnv("QDRANT_API_KEY", ""),
			SQLitePath:    getEnv("SQLITE_PATH", "data/vectors.db"),
			MinSimilarity: minSim,
		},
		Cache: CacheConfig{
			Capacity: capacity,
			TTL:      ttl,
			Prefix:   getEnv("CACHE_PREFIX", "chat:cache:"),
			FoldCase: foldCase,
		},
		LLM: LLMConfig{
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			SelfHostedURL:   getEnv("SELFHOSTED_URL", ""),
			SelfHostedModel: getEnv("SELFHOSTED_MODEL", "llama3"),
			MaxTokens:       maxTokens,
			Temperature:     temperature,
			Timeout:         chatTimeout,
		},
		Retrieval: RetrievalConfig{
			TopK:               topK,
			MaxInputChars:      maxInput,
			HistoryTokenBudget: historyBudget,
			RecordsPath:        getEnv("RECORDS_PATH", ""),
			WatchRecords:       watchRecords,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, "EMBEDDING_DIMENSION must be positive")
	}
	switch c.Embedding.Backend {
	case "openai", "ollama":
	default:
		problems = append(problems, fmt.Sprintf("unknown EMBEDDING_BACKEND %q", c.Embedding.Backend))
	}
	switch c.VectorStore.Backend {
	case "auto", "pgvector", "postgres", "qdrant", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown VECTOR_BACKEND %q", c.VectorStore.Backend))
	}
	if c.VectorStore.Backend == "qdrant" && c.VectorStore.QdrantURL == "" {
		problems = append(problems, "QDRANT_URL is required for the qdrant backend")
	}
	if (c.VectorStore.Backend == "pgvector" || c.VectorStore.Backend == "postgres") && c.Database.URL == "" {
		problems = append(problems, "DATABASE_URL is required for the postgres backends")
	}
	if c.VectorStore.MinSimilarity < -1 || c.VectorStore.MinSimilarity > 1 {
		problems = append(problems, "VECTOR_MIN_SIMILARITY must be within [-1, 1]")
	}
	if c.Cache.Capacity <= 0 {
		problems = append(problems, "CACHE_CAPACITY must be positive")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "CACHE_TTL must be positive")
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "RETRIEVAL_TOP_K must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Redacted returns loggable settings with credentials removed.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"addr":              c.Addr(),
		"database":          c.Database.URL != "",
		"redis_addr":        c.Redis.Addr,
		"embedding_backend": c.Embedding.Backend,
		"embedding_model":   c.Embedding.Model,
		"embedding_dim":     c.Embedding.Dimension,
		"vector_backend":    c.VectorStore.Backend,
		"cache_capacity":    c.Cache.Capacity,
		"cache_ttl":         c.Cache.TTL.String(),
		"openai":            c.LLM.OpenAIKey != "",
		"anthropic":         c.LLM.AnthropicKey != "",
		"selfhosted":        c.LLM.SelfHostedURL != "",
	}
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intVar(errs *[]string, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return n
}

func floatVar(errs *[]string, key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return f
}

func boolVar(errs *[]string, key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return b
}

// durationVar accepts Go durations ("30s") or a bare number of seconds.
func durationVar(errs *[]string, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", key, err))
		return fallback
	}
	return d
}
