package guardrails

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyPipelineAcceptsEverything(t *testing.T) {
	p := NewPipeline()

	assert.NoError(t, p.CheckInput(context.Background(), strings.Repeat("x", 100000)))
	out, replaced := p.FilterOutput(context.Background(), "As an AI language model")
	assert.False(t, replaced)
	assert.Equal(t, "As an AI language model", out)
}

func TestInputLengthGuard(t *testing.T) {
	p := DefaultPipeline(10)

	assert.NoError(t, p.CheckInput(context.Background(), "apa itu ppdb"[:10]))

	err := p.CheckInput(context.Background(), "apa itu ppdb sekolah")
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "input_length", v.Guard)
	assert.Equal(t, DefaultRefusal, v.Refusal)
}

func TestDefaultPipelineNoLengthLimit(t *testing.T) {
	assert.NoError(t, DefaultPipeline(0).CheckInput(context.Background(), strings.Repeat("a", 5000)))
}

func TestDenyListReplacesAnswer(t *testing.T) {
	p := DefaultPipeline(0)

	out, replaced := p.FilterOutput(context.Background(), "Sebagai model bahasa, saya tidak bisa...")
	assert.True(t, replaced)
	assert.Equal(t, DefaultRefusal, out)

	out, replaced = p.FilterOutput(context.Background(), "Pendaftaran dibuka bulan Juni.")
	assert.False(t, replaced)
	assert.Equal(t, "Pendaftaran dibuka bulan Juni.", out)
}

type failingGuard struct{}

func (failingGuard) Name() string { return "broken" }
func (failingGuard) Check(context.Context, string) (*Result, error) {
	return nil, errors.New("boom")
}

func TestFailingGuardIsSkipped(t *testing.T) {
	p := NewPipeline()
	p.AddInputGuardrail(failingGuard{})
	p.AddOutputGuardrail(failingGuard{})
	p.SetRefusal("custom")

	assert.NoError(t, p.CheckInput(context.Background(), "hello"))
	out, replaced := p.FilterOutput(context.Background(), "hello")
	assert.False(t, replaced)
	assert.Equal(t, "hello", out)
}
