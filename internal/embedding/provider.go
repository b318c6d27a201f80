package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/nikhilbhutani/schoolrag/internal/config"
)

var (
	// ErrUnavailable means the endpoint could not be reached or its health
	// probe failed.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrProvider means the endpoint answered with an error status or a
	// payload without a usable vector.
	ErrProvider = errors.New("embedding provider error")

	// ErrTimeout means the request exceeded its time budget.
	ErrTimeout = errors.New("embedding request timed out")

	ErrEmptyInput = errors.New("embedding input is empty")
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultProbeTimeout = 2 * time.Second
)

// Result is a single embedding together with the time the remote call took.
type Result struct {
	Vector  []float32
	Elapsed time.Duration
}

// Provider turns text into a fixed-dimension vector using one external
// model-serving endpoint. Implementations do not retry.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) (*Result, error)
	// Available runs a cheap health probe with its own short timeout.
	Available(ctx context.Context) bool
}

type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	Dimension    int
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	return o
}

// New builds the single configured provider.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	opts := Options{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Dimension:    cfg.Dimension,
		Timeout:      cfg.Timeout,
		ProbeTimeout: cfg.ProbeTimeout,
	}
	switch cfg.Backend {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings: missing API key")
		}
		return NewOpenAIProvider(opts), nil
	case "ollama", "":
		return NewOllamaProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}

// classify maps transport failures onto the package sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, opErr)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, urlErr.Err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrProvider, err)
}

// truncate cuts s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
