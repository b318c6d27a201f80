package llm

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

// SelfHostedCompleter calls a single-prompt completion endpoint with the
// Ollama /api/generate request shape.
type SelfHostedCompleter struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewSelfHostedCompleter(baseURL, model string, timeout time.Duration) *SelfHostedCompleter {
	if model == "" {
		model = "llama3"
	}
	return &SelfHostedCompleter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *SelfHostedCompleter) Name() string { return "selfhosted" }

type generateReq struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options *generateOptions `json:"options,omitempty"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResp struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

func (c *SelfHostedCompleter) TryComplete(ctx context.Context, messages []Message, opts Options) (*Answer, error) {
	start := time.Now()

	body := generateReq{
		Model:  c.model,
		Prompt: flattenPrompt(messages),
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		body.Options = &generateOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify("selfhosted generate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("selfhosted generate: %w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(raw), 200))
	}

	var out generateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("selfhosted generate: %w: decode: %v", ErrProvider, err)
	}
	if out.Response == nil {
		return nil, fmt.Errorf("selfhosted generate: %w: missing response field", ErrProvider)
	}
	if strings.TrimSpace(*out.Response) == "" {
		return nil, fmt.Errorf("selfhosted generate: %w", ErrEmptyResponse)
	}

	return &Answer{Text: *out.Response, Provider: c.Name(), Elapsed: time.Since(start)}, nil
}

// flattenPrompt renders a message list as one labelled transcript ending with
// an open assistant turn.
func flattenPrompt(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			sb.WriteString(m.Content)
		case RoleUser:
			sb.WriteString("User: " + m.Content)
		case RoleAssistant:
			sb.WriteString("Assistant: " + m.Content)
		default:
			continue
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}
