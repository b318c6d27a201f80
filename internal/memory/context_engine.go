package memory

import (
	"github.com/nikhilbhutani/schoolrag/internal/llm"
	"github.com/nikhilbhutani/schoolrag/pkg/tokenizer"
)

const DefaultHistoryBudget = 1500

const DefaultSystemPrompt = `Kamu adalah asisten virtual website sekolah. Jawab pertanyaan pengunjung dengan sopan, singkat, dan dalam bahasa yang sama dengan pertanyaan. Gunakan hanya informasi sekolah yang diberikan. Jika informasinya tidak ada, katakan bahwa kamu tidak mengetahuinya dan sarankan menghubungi pihak sekolah.`

// ContextEngine assembles the message list sent for generation: system
// prompt, retrieved school context, as much recent history as fits the token
// budget, then the user's question.
type ContextEngine struct {
	systemPrompt  string
	historyBudget int
}

// NewContextEngine uses DefaultSystemPrompt and DefaultHistoryBudget for zero
// values. A negative budget drops all history.
func NewContextEngine(systemPrompt string, historyBudget int) *ContextEngine {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if historyBudget == 0 {
		historyBudget = DefaultHistoryBudget
	}
	return &ContextEngine{systemPrompt: systemPrompt, historyBudget: historyBudget}
}

type Parts struct {
	History     []Entry
	Context     string // rendered retrieval context, may be empty
	UserMessage string
}

type Assembled struct {
	Messages      []llm.Message
	HistoryTokens int
	Truncated     bool // some history was dropped
}

func (ce *ContextEngine) Assemble(parts Parts) Assembled {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: ce.systemPrompt}}
	if parts.Context != "" {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Informasi sekolah yang relevan:\n\n" + parts.Context,
		})
	}

	// newest turns first until the budget runs out
	used := 0
	start := len(parts.History)
	for i := len(parts.History) - 1; i >= 0; i-- {
		n := tokenizer.EstimateTokens(parts.History[i].Content)
		if used+n > ce.historyBudget {
			break
		}
		used += n
		start = i
	}
	for _, e := range parts.History[start:] {
		if e.Role != llm.RoleUser && e.Role != llm.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: e.Role, Content: e.Content})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: parts.UserMessage})
	return Assembled{
		Messages:      messages,
		HistoryTokens: used,
		Truncated:     start > 0,
	}
}
