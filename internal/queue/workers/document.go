package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/schoolrag/internal/models"
	"github.com/nikhilbhutani/schoolrag/internal/queue"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
)

// DocumentIndexer is the part of rag.Indexer the worker drives.
type DocumentIndexer interface {
	Index(ctx context.Context, doc models.Document) (int, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

type DocumentWorker struct {
	indexer DocumentIndexer
}

func NewDocumentWorker(indexer DocumentIndexer) *DocumentWorker {
	return &DocumentWorker{indexer: indexer}
}

// Register binds the worker's handlers to their task types.
func (w *DocumentWorker) Register(r *queue.HandlersRegistry) {
	r.Register(queue.TypeDocumentIndex, asynq.HandlerFunc(w.ProcessIndex))
	r.Register(queue.TypeDocumentRemove, asynq.HandlerFunc(w.ProcessRemove))
}

// ProcessIndex rebuilds a document's chunks. Malformed payloads and
// dimension mismatches are not retried.
func (w *DocumentWorker) ProcessIndex(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	doc, err := payload.Document()
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	slog.Info("indexing document", "document_id", doc.ID)
	n, err := w.indexer.Index(ctx, doc)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDimensionMismatch) || errors.Is(err, vectorstore.ErrEmptyContent) ||
			errors.Is(err, vectorstore.ErrZeroVector) {
			slog.Error("document rejected by vector store", "document_id", doc.ID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	slog.Info("document indexed by worker", "document_id", doc.ID, "chunks", n)
	return nil
}

// ProcessRemove deletes a document and its chunks. A document that is
// already gone counts as removed.
func (w *DocumentWorker) ProcessRemove(ctx context.Context, t *asynq.Task) error {
	var payload queue.DocumentRemovePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("parse document ID: %v: %w", err, asynq.SkipRetry)
	}

	if err := w.indexer.Remove(ctx, id); err != nil {
		if errors.Is(err, vectorstore.ErrDocumentNotFound) {
			slog.Info("document already removed", "document_id", id)
			return nil
		}
		return err
	}
	return nil
}
