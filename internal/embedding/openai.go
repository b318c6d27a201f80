package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls any OpenAI-compatible POST {base}/embeddings endpoint
// and reads data[0].embedding.
type OpenAIProvider struct {
	client     *openai.Client
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	timeout    time.Duration
	probe      time.Duration
	httpClient *http.Client
}

func NewOpenAIProvider(opts Options) *OpenAIProvider {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = string(openai.SmallEmbedding3)
	}
	httpClient := &http.Client{}

	ocfg := openai.DefaultConfig(opts.APIKey)
	ocfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	ocfg.HTTPClient = httpClient

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(ocfg),
		baseURL:    ocfg.BaseURL,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		dimension:  opts.Dimension,
		timeout:    opts.Timeout,
		probe:      opts.ProbeTimeout,
		httpClient: httpClient,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }
func (p *OpenAIProvider) Dimension() int { return p.dimension }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai embed: %w: status %d: %s", ErrProvider, apiErr.HTTPStatusCode, truncate(apiErr.Message, 200))
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, fmt.Errorf("openai embed: %w: status %d", ErrProvider, reqErr.HTTPStatusCode)
		}
		return nil, classify("openai embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: %w: empty embedding", ErrProvider)
	}

	return &Result{Vector: resp.Data[0].Embedding, Elapsed: time.Since(start)}, nil
}

// Available probes GET {base}/models.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	return probe(ctx, p.httpClient, p.probe, p.baseURL+"/models", p.apiKey)
}
