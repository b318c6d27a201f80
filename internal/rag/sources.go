package rag

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nikhilbhutani/schoolrag/internal/models"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
	"github.com/nikhilbhutani/schoolrag/pkg/htmltext"
)

// RecordSource supplies one kind of structured site content to keyword search
// and quick answers.
type RecordSource interface {
	Name() string
	Records(ctx context.Context) ([]models.Indexable, error)
}

// searchSource scores every record of src and returns the best limit hits.
func searchSource(ctx context.Context, src RecordSource, keywords []string, limit int) ([]ContextChunk, error) {
	records, err := src.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", src.Name(), err)
	}

	var hits []ContextChunk
	for _, r := range records {
		title, category, content := r.IndexableText()
		score := KeywordScore(keywords, title+"\n"+content)
		if score <= 0 {
			continue
		}
		hits = append(hits, ContextChunk{
			Title:      title,
			Category:   category,
			Content:    content,
			Similarity: score,
			Source:     SourceKeyword,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// StaticSource serves records held in memory. Replace swaps them atomically.
type StaticSource struct {
	name    string
	mu      sync.RWMutex
	records []models.Indexable
}

func NewStaticSource(name string, records ...models.Indexable) *StaticSource {
	return &StaticSource{name: name, records: records}
}

func (s *StaticSource) Name() string { return s.name }

func (s *StaticSource) Records(_ context.Context) ([]models.Indexable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records, nil
}

func (s *StaticSource) Replace(records []models.Indexable) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// DocumentSource exposes the active documents kept by the vector store, with
// rich-text content reduced to plain text.
type DocumentSource struct {
	lister vectorstore.DocumentLister
}

func NewDocumentSource(lister vectorstore.DocumentLister) *DocumentSource {
	return &DocumentSource{lister: lister}
}

func (s *DocumentSource) Name() string { return "documents" }

func (s *DocumentSource) Records(ctx context.Context) ([]models.Indexable, error) {
	docs, err := s.lister.ListActiveDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Indexable, len(docs))
	for i, d := range docs {
		d.Content = htmltext.Clean(d.Content)
		out[i] = d
	}
	return out, nil
}

// LoadRecords reads a YAML file mapping record kinds (faq, program, staff,
// activity, announcement, ...) to lists of records and returns one source per
// kind, ordered by kind name.
func LoadRecords(path string) ([]*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records file: %w", err)
	}

	var byKind map[string][]models.Record
	if err := yaml.Unmarshal(data, &byKind); err != nil {
		return nil, fmt.Errorf("parse records file: %w", err)
	}

	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	sources := make([]*StaticSource, 0, len(kinds))
	for _, kind := range kinds {
		records := make([]models.Indexable, 0, len(byKind[kind]))
		for _, r := range byKind[kind] {
			r.Kind = kind
			records = append(records, r)
		}
		sources = append(sources, NewStaticSource(kind, records...))
	}
	return sources, nil
}
