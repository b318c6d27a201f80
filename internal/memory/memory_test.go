package memory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/schoolrag/internal/llm"
)

func TestBufferStore_KeepsLastEntriesPerSession(t *testing.T) {
	ctx := context.Background()
	s := NewBufferStore(3)

	for _, c := range []string{"1", "2", "3", "4"} {
		require.NoError(t, s.Append(ctx, "a", Entry{Role: llm.RoleUser, Content: c}))
	}
	require.NoError(t, s.Append(ctx, "b", Entry{Role: llm.RoleUser, Content: "x"}))

	got, err := s.Recent(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[0].Content)
	assert.Equal(t, "4", got[2].Content)
	assert.False(t, got[0].Timestamp.IsZero())

	got, err = s.Recent(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "4", got[0].Content)

	got, err = s.Recent(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	s := NewRedisStore(client, 2, time.Minute)
	session := "test-" + time.Now().Format("150405.000000")
	defer client.Del(ctx, s.prefix+session)

	require.NoError(t, s.Append(ctx, session,
		Entry{Role: llm.RoleUser, Content: "halo"},
		Entry{Role: llm.RoleAssistant, Content: "hai"},
		Entry{Role: llm.RoleUser, Content: "biaya?"},
	))

	got, err := s.Recent(ctx, session, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hai", got[0].Content)
	assert.Equal(t, "biaya?", got[1].Content)
}

func TestContextEngine_Assemble(t *testing.T) {
	history := []Entry{
		{Role: llm.RoleUser, Content: strings.Repeat("a", 40)},      // 10 tokens
		{Role: llm.RoleAssistant, Content: strings.Repeat("b", 20)}, // 5 tokens
		{Role: llm.RoleUser, Content: strings.Repeat("c", 20)},      // 5 tokens
	}
	ce := NewContextEngine("sys", 12)

	got := ce.Assemble(Parts{History: history, Context: "[Document: A | Category: B]\nisi", UserMessage: "tanya"})

	require.Len(t, got.Messages, 5)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "sys"}, got.Messages[0])
	assert.Contains(t, got.Messages[1].Content, "[Document: A | Category: B]\nisi")
	assert.Equal(t, strings.Repeat("b", 20), got.Messages[2].Content)
	assert.Equal(t, strings.Repeat("c", 20), got.Messages[3].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "tanya"}, got.Messages[4])
	assert.Equal(t, 10, got.HistoryTokens)
	assert.True(t, got.Truncated)
}

func TestContextEngine_NoContextNoHistory(t *testing.T) {
	got := NewContextEngine("", 100).Assemble(Parts{UserMessage: "halo"})

	require.Len(t, got.Messages, 2)
	assert.Equal(t, DefaultSystemPrompt, got.Messages[0].Content)
	assert.False(t, got.Truncated)
}
