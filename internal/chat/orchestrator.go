package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/schoolrag/internal/cache"
	"github.com/nikhilbhutani/schoolrag/internal/guardrails"
	"github.com/nikhilbhutani/schoolrag/internal/llm"
	"github.com/nikhilbhutani/schoolrag/internal/memory"
	"github.com/nikhilbhutani/schoolrag/internal/rag"
)

const (
	// TagRetrieval marks cached answers built from indexed content; indexing
	// changes invalidate it.
	TagRetrieval = "rag"
	TagGeneral   = "general"

	ProviderGuardrail = "guardrail"
)

var ErrEmptyQuestion = errors.New("question is empty")

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]rag.ContextChunk, error)
}

type Generator interface {
	Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Answer, error)
}

// OutputFilter returns the text to show and whether the answer was replaced.
type OutputFilter interface {
	FilterOutput(ctx context.Context, answer string) (string, bool)
}

type Answer struct {
	Text                 string   `json:"text"`
	IsRetrievalAugmented bool     `json:"is_retrieval_augmented"`
	UsedSources          []string `json:"used_sources"`
	Provider             string   `json:"provider"`
	Cached               bool     `json:"cached"`
}

type Config struct {
	Cache     *cache.ResponseCache // nil disables caching
	Retriever Retriever
	Prompts   *memory.ContextEngine
	Generator Generator
	Output    OutputFilter // nil skips the post-generation check
	Sessions  memory.Store // nil keeps no server-side history
	TopK      int
	Options   llm.Options
}

// Orchestrator answers one question: cache, retrieval, prompt assembly,
// generation chain, output guardrail, then cache write.
type Orchestrator struct {
	cache     *cache.ResponseCache
	retriever Retriever
	prompts   *memory.ContextEngine
	generator Generator
	output    OutputFilter
	sessions  memory.Store
	canned    *llm.CannedCompleter
	topK      int
	opts      llm.Options
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Prompts == nil {
		cfg.Prompts = memory.NewContextEngine("", 0)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	return &Orchestrator{
		cache:     cfg.Cache,
		retriever: cfg.Retriever,
		prompts:   cfg.Prompts,
		generator: cfg.Generator,
		output:    cfg.Output,
		sessions:  cfg.Sessions,
		canned:    llm.NewCannedCompleter(nil),
		topK:      cfg.TopK,
		opts:      cfg.Options,
	}
}

// GenerateAnswer always produces an answer for a non-empty question; provider
// and retrieval failures degrade to canned text. history overrides the stored
// session history when non-nil. Only questions without history are cached,
// since the answer to a follow-up depends on the conversation.
func (o *Orchestrator) GenerateAnswer(ctx context.Context, query string, history []memory.Entry, session string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuestion
	}
	start := time.Now()

	if history == nil && session != "" && o.sessions != nil {
		stored, err := o.sessions.Recent(ctx, session, 0)
		if err != nil {
			slog.Warn("load session history failed", "session", session, "error", err)
		}
		history = stored
	}
	cacheable := o.cache != nil && len(history) == 0

	if cacheable {
		if raw, ok := o.cache.Get(ctx, query, nil); ok {
			if ans, ok := decodeCached(raw); ok {
				o.remember(ctx, session, query, ans.Text)
				return ans, nil
			}
		}
	}

	ans, blocked := o.answer(ctx, query, history)

	if !blocked && o.output != nil {
		if text, refused := o.output.FilterOutput(ctx, ans.Text); refused {
			ans.Text = text
			ans.Provider = ProviderGuardrail
			blocked = true
		}
	}

	// canned and refused answers are never cached
	if cacheable && !blocked && ans.Provider != llm.CannedProvider {
		tag := TagGeneral
		if ans.IsRetrievalAugmented {
			tag = TagRetrieval
		}
		if raw, err := json.Marshal(ans); err == nil {
			o.cache.Set(ctx, query, string(raw), nil, tag)
		}
	}

	o.remember(ctx, session, query, ans.Text)
	slog.Info("question answered",
		"provider", ans.Provider,
		"retrieval_augmented", ans.IsRetrievalAugmented,
		"sources", len(ans.UsedSources),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ans, nil
}

// answer runs retrieval and generation. blocked reports an input guardrail
// refusal.
func (o *Orchestrator) answer(ctx context.Context, query string, history []memory.Entry) (*Answer, bool) {
	var chunks []rag.ContextChunk
	if o.retriever != nil {
		found, err := o.retriever.Retrieve(ctx, query, o.topK)
		var v *guardrails.Violation
		switch {
		case errors.As(err, &v):
			slog.Info("question blocked", "guard", v.Guard, "reason", v.Reason)
			return &Answer{Text: v.Refusal, Provider: ProviderGuardrail, UsedSources: []string{}}, true
		case err != nil:
			slog.Warn("retrieval failed, answering without context", "error", err)
		default:
			chunks = found
		}
	}

	prompt := o.prompts.Assemble(memory.Parts{
		History:     history,
		Context:     rag.BuildContext(chunks),
		UserMessage: query,
	})

	ans := &Answer{
		IsRetrievalAugmented: len(chunks) > 0,
		UsedSources:          rag.Titles(chunks),
	}
	if ans.UsedSources == nil {
		ans.UsedSources = []string{}
	}

	var generated *llm.Answer
	var err error
	if o.generator != nil {
		generated, err = o.generator.Complete(ctx, prompt.Messages, o.opts)
	} else {
		err = fmt.Errorf("no generator configured: %w", llm.ErrAllProvidersFailed)
	}
	if err != nil {
		slog.Warn("generation failed, using canned answer", "error", err)
		generated = &llm.Answer{Text: o.canned.Match(query), Provider: llm.CannedProvider}
	}

	ans.Text = generated.Text
	ans.Provider = generated.Provider
	return ans, false
}

func (o *Orchestrator) remember(ctx context.Context, session, query, answer string) {
	if session == "" || o.sessions == nil {
		return
	}
	err := o.sessions.Append(ctx, session,
		memory.Entry{Role: llm.RoleUser, Content: query},
		memory.Entry{Role: llm.RoleAssistant, Content: answer},
	)
	if err != nil {
		slog.Warn("save session history failed", "session", session, "error", err)
	}
}

func decodeCached(raw string) (*Answer, bool) {
	var ans Answer
	if err := json.Unmarshal([]byte(raw), &ans); err != nil || ans.Text == "" {
		slog.Warn("discarding unreadable cached answer", "error", err)
		return nil, false
	}
	ans.Cached = true
	if ans.UsedSources == nil {
		ans.UsedSources = []string{}
	}
	return &ans, true
}
