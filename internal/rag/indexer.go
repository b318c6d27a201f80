package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/schoolrag/internal/models"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
	"github.com/nikhilbhutani/schoolrag/pkg/chunker"
	"github.com/nikhilbhutani/schoolrag/pkg/htmltext"
)

// ChunkEmbedder embeds a batch of chunk texts, one vector per text.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer turns documents into stored chunks: chunk, embed, then replace the
// document's chunks in the store.
type Indexer struct {
	embedder  ChunkEmbedder
	store     vectorstore.Store
	chunkOpts chunker.Options
	onChange  func(ctx context.Context)
}

func NewIndexer(embedder ChunkEmbedder, store vectorstore.Store, opts chunker.Options) *Indexer {
	return &Indexer{embedder: embedder, store: store, chunkOpts: opts}
}

// OnChange registers fn to run after any document is indexed, removed or
// toggled, typically to drop cached answers built from old content.
func (ix *Indexer) OnChange(fn func(ctx context.Context)) {
	ix.onChange = fn
}

// Index (re)builds the chunks of doc and returns how many were stored. Rich
// text is reduced to plain text first. A document with no text keeps no
// chunks.
func (ix *Indexer) Index(ctx context.Context, doc models.Document) (int, error) {
	start := time.Now()
	_, _, content := doc.IndexableText()

	pieces := chunker.Chunk(htmltext.Clean(content), ix.chunkOpts)
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}

	vectors, err := ix.embedder.EmbedChunks(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(vectors) != len(pieces) {
		return 0, fmt.Errorf("embed document %s: got %d vectors for %d chunks", doc.ID, len(vectors), len(pieces))
	}

	inputs := make([]vectorstore.ChunkInput, len(pieces))
	for i, p := range pieces {
		inputs[i] = vectorstore.ChunkInput{
			Content:    p.Content,
			Embedding:  vectors[i],
			TokenCount: p.TokenCount,
		}
	}

	if err := ix.store.Upsert(ctx, doc, inputs); err != nil {
		return 0, fmt.Errorf("store chunks for %s: %w", doc.ID, err)
	}

	slog.Info("document indexed",
		"document_id", doc.ID,
		"title", doc.Title,
		"chunks", len(inputs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	ix.changed(ctx)
	return len(inputs), nil
}

func (ix *Indexer) Remove(ctx context.Context, id uuid.UUID) error {
	if err := ix.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("remove document %s: %w", id, err)
	}
	slog.Info("document removed", "document_id", id)
	ix.changed(ctx)
	return nil
}

func (ix *Indexer) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := ix.store.SetDocumentActive(ctx, id, active); err != nil {
		return fmt.Errorf("set document %s active=%t: %w", id, active, err)
	}
	ix.changed(ctx)
	return nil
}

func (ix *Indexer) changed(ctx context.Context) {
	if ix.onChange != nil {
		ix.onChange(ctx)
	}
}
