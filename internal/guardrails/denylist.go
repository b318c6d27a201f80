package guardrails

import (
	"context"
	"strings"
)

// DefaultDenyPhrases mark answers that drifted away from school topics or
// leaked the model's own framing.
var DefaultDenyPhrases = []string{
	"as an ai language model",
	"sebagai model bahasa",
	"sebagai ai, saya",
	"i cannot browse the internet",
	"saya tidak memiliki akses internet",
	"resep masakan",
	"prediksi togel",
	"judi online",
}

// DenyList blocks text containing any of its phrases, case-insensitively.
type DenyList struct {
	phrases []string
}

func NewDenyList(phrases []string) *DenyList {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	return &DenyList{phrases: lowered}
}

func (d *DenyList) Name() string { return "deny_list" }

func (d *DenyList) Check(_ context.Context, text string) (*Result, error) {
	lower := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return &Result{
				Allowed: false,
				Reason:  "contains denied phrase: " + p,
				Flags:   []string{"denied_phrase"},
			}, nil
		}
	}
	return &Result{Allowed: true}, nil
}
