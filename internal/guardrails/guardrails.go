package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// DefaultRefusal replaces answers and questions a guardrail blocks.
const DefaultRefusal = "Maaf, saya hanya dapat membantu menjawab pertanyaan seputar informasi sekolah. " +
	"Silakan ajukan pertanyaan tentang pendaftaran, program, biaya, atau kegiatan sekolah."

// Result holds the outcome of a single check.
type Result struct {
	Allowed bool     `json:"allowed"`
	Flags   []string `json:"flags,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Guardrail is a check that can be applied to input or output.
type Guardrail interface {
	Check(ctx context.Context, text string) (*Result, error)
	Name() string
}

// Violation is returned when an input guardrail blocks a question. Refusal is
// the text to show the user instead of an answer.
type Violation struct {
	Guard   string
	Reason  string
	Refusal string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("blocked by %s: %s", v.Guard, v.Reason)
}

// Pipeline chains guardrails for questions and answers. An empty pipeline
// accepts everything.
type Pipeline struct {
	inputGuardrails  []Guardrail
	outputGuardrails []Guardrail
	refusal          string
}

func NewPipeline() *Pipeline {
	return &Pipeline{refusal: DefaultRefusal}
}

func (p *Pipeline) AddInputGuardrail(g Guardrail) {
	p.inputGuardrails = append(p.inputGuardrails, g)
}

func (p *Pipeline) AddOutputGuardrail(g Guardrail) {
	p.outputGuardrails = append(p.outputGuardrails, g)
}

func (p *Pipeline) SetRefusal(text string) {
	if text != "" {
		p.refusal = text
	}
}

// CheckInput returns a *Violation when any input guardrail blocks text.
// A guardrail that fails to run is logged and skipped.
func (p *Pipeline) CheckInput(ctx context.Context, text string) error {
	if res, name := p.run(ctx, text, p.inputGuardrails); res != nil {
		return &Violation{Guard: name, Reason: res.Reason, Refusal: p.refusal}
	}
	return nil
}

// FilterOutput returns answer unchanged, or the refusal text and true when an
// output guardrail blocks it.
func (p *Pipeline) FilterOutput(ctx context.Context, answer string) (string, bool) {
	if res, name := p.run(ctx, answer, p.outputGuardrails); res != nil {
		slog.Warn("answer replaced by guardrail", "guard", name, "reason", res.Reason)
		return p.refusal, true
	}
	return answer, false
}

// run returns the first blocking result and the guard that produced it.
func (p *Pipeline) run(ctx context.Context, text string, guards []Guardrail) (*Result, string) {
	for _, g := range guards {
		result, err := g.Check(ctx, text)
		if err != nil {
			slog.Warn("guardrail failed", "guard", g.Name(), "error", err)
			continue
		}
		if !result.Allowed {
			return result, g.Name()
		}
	}
	return nil, ""
}

// DefaultPipeline rejects questions longer than maxInputChars (0 disables
// the check) and filters answers through the default deny list.
func DefaultPipeline(maxInputChars int) *Pipeline {
	p := NewPipeline()
	if maxInputChars > 0 {
		p.AddInputGuardrail(NewInputLengthGuard(maxInputChars))
	}
	p.AddOutputGuardrail(NewDenyList(DefaultDenyPhrases))
	return p
}

// InputLengthGuard rejects inputs that are too long.
type InputLengthGuard struct {
	maxLength int
}

func NewInputLengthGuard(maxLen int) *InputLengthGuard {
	return &InputLengthGuard{maxLength: maxLen}
}

func (g *InputLengthGuard) Name() string { return "input_length" }

func (g *InputLengthGuard) Check(_ context.Context, text string) (*Result, error) {
	if utf8.RuneCountInString(text) > g.maxLength {
		return &Result{
			Allowed: false,
			Reason:  fmt.Sprintf("input exceeds %d characters", g.maxLength),
			Flags:   []string{"input_too_long"},
		}, nil
	}
	return &Result{Allowed: true}, nil
}
