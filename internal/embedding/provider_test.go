package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/schoolrag/internal/config"
)

func newOllamaServer(t *testing.T, embed http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", embed)
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "biaya sekolah", req.Prompt)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResp{Embedding: []float32{0.1, 0.2, 0.3}})
	})

	p := NewOllamaProvider(Options{BaseURL: srv.URL, Model: "nomic-embed-text", Dimension: 3})
	res, err := p.Embed(context.Background(), "biaya sekolah")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, res.Vector)
	assert.GreaterOrEqual(t, res.Elapsed, time.Duration(0))
	assert.True(t, p.Available(context.Background()))
}

func TestOllamaProvider_ErrorStatus(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	_, err := NewOllamaProvider(Options{BaseURL: srv.URL}).Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrProvider)
}

func TestOllamaProvider_ErrorBodyCutOnRuneBoundary(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("x" + strings.Repeat("é", 300)))
	})

	_, err := NewOllamaProvider(Options{BaseURL: srv.URL}).Embed(context.Background(), "hello")

	require.ErrorIs(t, err, ErrProvider)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.Contains(t, err.Error(), "...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "halo", truncate("halo", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "a...", truncate("aé", 2))
	assert.Equal(t, "...", truncate("日本", 2))
}

func TestOllamaProvider_MalformedPayload(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1]]}`))
	})

	_, err := NewOllamaProvider(Options{BaseURL: srv.URL}).Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrProvider)
}

func TestOllamaProvider_Timeout(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p := NewOllamaProvider(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := p.Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrTimeout)
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(Options{BaseURL: url})
	_, err := p.Embed(context.Background(), "hello")

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, p.Available(context.Background()))
}

func TestOllamaProvider_EmptyInput(t *testing.T) {
	_, err := NewOllamaProvider(Options{}).Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func newOpenAIServer(t *testing.T, embed http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", embed)
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
			"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	})

	p := NewOpenAIProvider(Options{BaseURL: srv.URL, APIKey: "sk-test", Dimension: 2})
	res, err := p.Embed(context.Background(), "jadwal ujian")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, res.Vector)
	assert.True(t, p.Available(context.Background()))
}

func TestOpenAIProvider_ServerError(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := NewOpenAIProvider(Options{BaseURL: srv.URL, APIKey: "sk-test"}).Embed(context.Background(), "x")

	assert.ErrorIs(t, err, ErrProvider)
}

func TestOpenAIProvider_EmptyData(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[]}`))
	})

	_, err := NewOpenAIProvider(Options{BaseURL: srv.URL, APIKey: "sk-test"}).Embed(context.Background(), "x")

	assert.ErrorIs(t, err, ErrProvider)
}

func TestOpenAIProvider_ProbeRejectsBadKey(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {})

	p := NewOpenAIProvider(Options{BaseURL: srv.URL, APIKey: "wrong"})

	assert.False(t, p.Available(context.Background()))
}

func TestNew(t *testing.T) {
	p, err := New(config.EmbeddingConfig{Backend: "ollama", Dimension: 768})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, 768, p.Dimension())

	_, err = New(config.EmbeddingConfig{Backend: "openai"})
	assert.Error(t, err)

	_, err = New(config.EmbeddingConfig{Backend: "cohere"})
	assert.Error(t, err)
}
