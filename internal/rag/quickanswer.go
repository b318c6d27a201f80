package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// QuickRule maps trigger phrases to a record source. When a question contains
// any trigger, the source's most recent record is returned as the only
// context.
type QuickRule struct {
	Name     string
	Triggers []string
	Source   RecordSource
}

// DefaultQuickTriggers are keyed by the record kind they answer from.
var DefaultQuickTriggers = map[string][]string{
	"admission": {"ppdb", "pendaftaran siswa baru", "penerimaan siswa baru", "penerimaan peserta didik", "daftar sekolah"},
}

type QuickAnswers struct {
	rules []QuickRule
}

func NewQuickAnswers(rules ...QuickRule) *QuickAnswers {
	return &QuickAnswers{rules: rules}
}

// QuickAnswersFor builds rules from DefaultQuickTriggers for every source
// whose name matches a trigger kind.
func QuickAnswersFor(sources []RecordSource) *QuickAnswers {
	var rules []QuickRule
	for _, src := range sources {
		if triggers, ok := DefaultQuickTriggers[src.Name()]; ok {
			rules = append(rules, QuickRule{Name: src.Name(), Triggers: triggers, Source: src})
		}
	}
	return NewQuickAnswers(rules...)
}

func (q *QuickAnswers) Lookup(ctx context.Context, query string) (ContextChunk, bool) {
	lower := strings.ToLower(query)
	for _, rule := range q.rules {
		if !matchesAny(lower, rule.Triggers) {
			continue
		}
		records, err := rule.Source.Records(ctx)
		if err != nil {
			slog.Warn("quick answer source failed", "rule", rule.Name, "error", err)
			continue
		}
		latest, ok := latestRecord(records)
		if !ok {
			continue
		}
		title, category, content := latest.IndexableText()
		return ContextChunk{
			Title:      title,
			Category:   category,
			Content:    content,
			Similarity: 1,
			Source:     SourceQuickAnswer,
		}, true
	}
	return ContextChunk{}, false
}

func matchesAny(lower string, triggers []string) bool {
	for _, t := range triggers {
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// latestRecord picks the newest dated record, or the first one when none
// carry a date.
func latestRecord(records []models.Indexable) (models.Indexable, bool) {
	if len(records) == 0 {
		return nil, false
	}
	best := records[0]
	for _, r := range records[1:] {
		d, ok := r.(models.Dated)
		if !ok {
			continue
		}
		bd, ok := best.(models.Dated)
		if !ok || d.RecordDate().After(bd.RecordDate()) {
			best = r
		}
	}
	return best, true
}
