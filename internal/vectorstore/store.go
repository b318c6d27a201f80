package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

var (
	// ErrDimensionMismatch is returned when an embedding's length differs from
	// the dimension the collection was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrEmptyContent      = errors.New("chunk content is empty")
	ErrZeroVector        = errors.New("embedding has zero magnitude")
)

const DefaultMinSimilarity = 0.5

type Mode string

const (
	ModeNative   Mode = "native"
	ModeFallback Mode = "fallback"
)

// ChunkInput is one chunk handed to Upsert.
type ChunkInput struct {
	Content    string
	Embedding  []float32
	TokenCount int
}

type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Embedding  []float32 `json:"-"`
	// Seq is the insertion order within the collection and breaks ties
	// between equal similarities.
	Seq int64 `json:"-"`
}

type SearchOptions struct {
	TopK int
	// MinSimilarity is the lowest similarity returned; nil means
	// DefaultMinSimilarity.
	MinSimilarity *float64
}

// Threshold returns a MinSimilarity value.
func Threshold(v float64) *float64 { return &v }

func (o SearchOptions) withDefaults() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MinSimilarity == nil {
		o.MinSimilarity = Threshold(DefaultMinSimilarity)
	}
	return o
}

func (o SearchOptions) threshold() float64 {
	if o.MinSimilarity == nil {
		return DefaultMinSimilarity
	}
	return *o.MinSimilarity
}

type SearchResult struct {
	Chunk      Chunk   `json:"chunk"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Similarity float64 `json:"similarity"`
}

// Store persists chunks with their embeddings for a single collection and
// ranks them by cosine similarity.
type Store interface {
	Mode() Mode
	Dimension() int
	// EnsureCollection creates the collection if missing. Safe to call
	// concurrently and repeatedly.
	EnsureCollection(ctx context.Context) error
	// Upsert replaces every chunk of doc with chunks and marks the document
	// processed once they are written.
	Upsert(ctx context.Context, doc models.Document, chunks []ChunkInput) error
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error)
	SetDocumentActive(ctx context.Context, documentID uuid.UUID, active bool) error
	DeleteDocument(ctx context.Context, documentID uuid.UUID) error
	Close() error
}

// DocumentLister is implemented by stores that also keep the source documents
// and can hand them to keyword search.
type DocumentLister interface {
	ListActiveDocuments(ctx context.Context) ([]models.Document, error)
}

// validate checks chunk content and embedding length before anything is
// deleted, so a bad batch never leaves a document without chunks.
func validate(dim int, chunks []ChunkInput) error {
	for i, c := range chunks {
		if c.Content == "" {
			return fmt.Errorf("chunk %d: %w", i, ErrEmptyContent)
		}
		if len(c.Embedding) != dim {
			return fmt.Errorf("chunk %d: %w: got %d, collection has %d", i, ErrDimensionMismatch, len(c.Embedding), dim)
		}
		if isZero(c.Embedding) {
			return fmt.Errorf("chunk %d: %w", i, ErrZeroVector)
		}
	}
	return nil
}

// isZero reports whether v has zero magnitude. Such vectors have no
// direction, so they never match anything.
func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
