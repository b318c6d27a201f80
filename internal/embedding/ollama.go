package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to a local model server using the
// POST /api/embeddings {model, prompt} -> {embedding} shape.
type OllamaProvider struct {
	baseURL    string
	model      string
	dimension  int
	timeout    time.Duration
	probe      time.Duration
	httpClient *http.Client
}

func NewOllamaProvider(opts Options) *OllamaProvider {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "nomic-embed-text"
	}
	return &OllamaProvider{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		dimension:  opts.Dimension,
		timeout:    opts.Timeout,
		probe:      opts.ProbeTimeout,
		httpClient: &http.Client{},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }
func (p *OllamaProvider) Dimension() int { return p.dimension }

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float32 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedReq{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classify("ollama embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama embed: %w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(msg), 200))
	}

	var out ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w: %v", ErrProvider, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: %w: empty embedding", ErrProvider)
	}

	return &Result{Vector: out.Embedding, Elapsed: time.Since(start)}, nil
}

// Available probes GET /api/tags.
func (p *OllamaProvider) Available(ctx context.Context) bool {
	return probe(ctx, p.httpClient, p.probe, p.baseURL+"/api/tags", "")
}

func probe(ctx context.Context, client *http.Client, timeout time.Duration, url, apiKey string) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
