package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
	"unicode/utf8"
)

var (
	ErrProvider           = errors.New("generation provider error")
	ErrEmptyResponse      = errors.New("generation provider returned an empty answer")
	ErrTimeout            = errors.New("generation provider timed out")
	ErrAllProvidersFailed = errors.New("all generation providers failed")
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

type Options struct {
	MaxTokens   int
	Temperature float64
}

// Answer is a completed generation. Provider names the completer that produced
// it.
type Answer struct {
	Text     string
	Provider string
	Elapsed  time.Duration
}

// Completer is one strategy in the generation chain.
type Completer interface {
	Name() string
	TryComplete(ctx context.Context, messages []Message, opts Options) (*Answer, error)
}

// classify wraps a transport failure in ErrTimeout or ErrProvider.
func classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrProvider, err)
}

// lastUserMessage returns the content of the final user turn.
func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
