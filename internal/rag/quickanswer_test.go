package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

func TestQuickAnswers_Lookup(t *testing.T) {
	empty := NewStaticSource("admission")
	undated := NewStaticSource("info", models.Record{Title: "pertama"}, models.Record{Title: "kedua"})
	q := NewQuickAnswers(
		QuickRule{Name: "admission", Triggers: []string{"ppdb"}, Source: empty},
		QuickRule{Name: "info", Triggers: []string{"PPDB", "jadwal"}, Source: undated},
	)

	hit, ok := q.Lookup(context.Background(), "info ppdb dong")
	assert.True(t, ok, "empty source falls through to the next rule")
	assert.Equal(t, "pertama", hit.Title)
	assert.Equal(t, 1.0, hit.Similarity)

	_, ok = q.Lookup(context.Background(), "seragam sekolah")
	assert.False(t, ok)
}

func TestQuickAnswersFor_OnlyKnownKinds(t *testing.T) {
	q := QuickAnswersFor([]RecordSource{NewStaticSource("faq"), NewStaticSource("admission")})
	assert.Len(t, q.rules, 1)
	assert.Equal(t, "admission", q.rules[0].Name)
}
