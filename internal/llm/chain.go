package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/metrics"
)

// Chain tries completers in order and returns the first non-empty answer.
type Chain struct {
	completers []Completer
	timeout    time.Duration
}

// NewChain builds a chain. timeout bounds each attempt; zero means the
// caller's context alone.
func NewChain(timeout time.Duration, completers ...Completer) *Chain {
	return &Chain{completers: completers, timeout: timeout}
}

// NewChainFromConfig chains every configured provider in the order OpenAI,
// Anthropic, self-hosted, and always ends with canned answers.
func NewChainFromConfig(cfg config.LLMConfig) *Chain {
	var completers []Completer
	if cfg.OpenAIKey != "" || cfg.OpenAIBaseURL != "" {
		completers = append(completers, NewOpenAICompleter(OpenAIConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
		}))
	}
	if cfg.AnthropicKey != "" {
		completers = append(completers, NewAnthropicCompleter(AnthropicConfig{
			APIKey: cfg.AnthropicKey,
			Model:  cfg.AnthropicModel,
		}))
	}
	if cfg.SelfHostedURL != "" {
		completers = append(completers, NewSelfHostedCompleter(cfg.SelfHostedURL, cfg.SelfHostedModel, cfg.Timeout))
	}
	completers = append(completers, NewCannedCompleter(nil))
	return NewChain(cfg.Timeout, completers...)
}

func (c *Chain) Names() []string {
	names := make([]string, len(c.completers))
	for i, comp := range c.completers {
		names[i] = comp.Name()
	}
	return names
}

// Complete returns the first successful answer. Every failed attempt is logged
// and counted; if all fail the joined errors are wrapped in
// ErrAllProvidersFailed.
func (c *Chain) Complete(ctx context.Context, messages []Message, opts Options) (*Answer, error) {
	var errs []error
	for _, comp := range c.completers {
		name := comp.Name()
		ans, err := c.attempt(ctx, comp, messages, opts)
		if err != nil {
			metrics.ProviderAttempts.WithLabelValues(name, attemptStatus(err)).Inc()
			slog.Warn("generation provider failed", "provider", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.ProviderAttempts.WithLabelValues(name, "ok").Inc()
		slog.Info("answer generated", "provider", ans.Provider, "elapsed_ms", ans.Elapsed.Milliseconds())
		return ans, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *Chain) attempt(ctx context.Context, comp Completer, messages []Message, opts Options) (*Answer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	ans, err := comp.TryComplete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if ans == nil || strings.TrimSpace(ans.Text) == "" {
		return nil, ErrEmptyResponse
	}
	if ans.Provider == "" {
		ans.Provider = comp.Name()
	}
	if ans.Elapsed == 0 {
		ans.Elapsed = time.Since(start)
	}
	return ans, nil
}

func attemptStatus(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
