package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses api.openai.com
	Model      string
	HTTPClient *http.Client
}

func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (c *OpenAICompleter) Name() string { return "openai" }

func (c *OpenAICompleter) TryComplete(ctx context.Context, messages []Message, opts Options) (*Answer, error) {
	start := time.Now()

	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		if errors.As(err, &apiErr) || errors.As(err, &reqErr) {
			return nil, fmt.Errorf("openai chat: %w: %s", ErrProvider, truncate(err.Error(), 200))
		}
		return nil, classify("openai chat", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, fmt.Errorf("openai chat: %w", ErrEmptyResponse)
	}

	return &Answer{
		Text:     resp.Choices[0].Message.Content,
		Provider: c.Name(),
		Elapsed:  time.Since(start),
	}, nil
}
