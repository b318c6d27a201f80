package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nikhilbhutani/schoolrag/internal/metrics"
)

// Service wraps a Provider with timing metrics and a dimension check.
type Service struct {
	provider Provider
}

func NewService(p Provider) *Service {
	return &Service{provider: p}
}

func (s *Service) Provider() Provider { return s.provider }

func (s *Service) Dimension() int { return s.provider.Dimension() }

// Embed embeds a single text. A vector whose length differs from the
// configured dimension is rejected as a provider error.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	res, err := s.provider.Embed(ctx, text)
	if err != nil {
		metrics.EmbeddingDuration.WithLabelValues(s.provider.Name(), status(err)).Observe(time.Since(start).Seconds())
		slog.Warn("embedding failed", "provider", s.provider.Name(), "error", err)
		return nil, err
	}
	metrics.EmbeddingDuration.WithLabelValues(s.provider.Name(), "ok").Observe(res.Elapsed.Seconds())

	if dim := s.provider.Dimension(); dim > 0 && len(res.Vector) != dim {
		return nil, fmt.Errorf("%s embed: %w: got %d dimensions, want %d", s.provider.Name(), ErrProvider, len(res.Vector), dim)
	}
	return res.Vector, nil
}

// EmbedChunks embeds texts one at a time and stops at the first failure.
func (s *Service) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (s *Service) Available(ctx context.Context) bool {
	return s.provider.Available(ctx)
}

func status(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
