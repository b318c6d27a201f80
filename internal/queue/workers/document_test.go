package workers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/schoolrag/internal/models"
	"github.com/nikhilbhutani/schoolrag/internal/queue"
	"github.com/nikhilbhutani/schoolrag/internal/vectorstore"
)

type fakeIndexer struct {
	indexed  []models.Document
	removed  []uuid.UUID
	indexErr error
	rmErr    error
}

func (f *fakeIndexer) Index(_ context.Context, doc models.Document) (int, error) {
	if f.indexErr != nil {
		return 0, f.indexErr
	}
	f.indexed = append(f.indexed, doc)
	return 1, nil
}

func (f *fakeIndexer) Remove(_ context.Context, id uuid.UUID) error {
	if f.rmErr != nil {
		return f.rmErr
	}
	f.removed = append(f.removed, id)
	return nil
}

func TestProcessIndex_RoundTripsDocument(t *testing.T) {
	doc := models.Document{
		ID: uuid.New(), Title: "PPDB 2025", Category: "Pendaftaran",
		Content: "Pendaftaran dibuka 1 Juni.", IsActive: true,
		UpdatedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	task, err := queue.NewDocumentIndexTask(doc)
	require.NoError(t, err)
	assert.Equal(t, queue.TypeDocumentIndex, task.Type())

	idx := &fakeIndexer{}
	require.NoError(t, NewDocumentWorker(idx).ProcessIndex(context.Background(), task))

	require.Len(t, idx.indexed, 1)
	assert.Equal(t, doc.ID, idx.indexed[0].ID)
	assert.Equal(t, doc.Content, idx.indexed[0].Content)
	assert.True(t, idx.indexed[0].UpdatedAt.Equal(doc.UpdatedAt))
}

func TestProcessIndex_SkipsRetryOnBadInput(t *testing.T) {
	w := NewDocumentWorker(&fakeIndexer{})

	err := w.ProcessIndex(context.Background(), asynq.NewTask(queue.TypeDocumentIndex, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessIndex(context.Background(), asynq.NewTask(queue.TypeDocumentIndex, []byte(`{"id":"nope"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessIndex_RetryPolicy(t *testing.T) {
	task, err := queue.NewDocumentIndexTask(models.Document{ID: uuid.New(), Content: "x"})
	require.NoError(t, err)

	mismatch := NewDocumentWorker(&fakeIndexer{indexErr: fmt.Errorf("store: %w", vectorstore.ErrDimensionMismatch)})
	assert.ErrorIs(t, mismatch.ProcessIndex(context.Background(), task), asynq.SkipRetry)

	transient := NewDocumentWorker(&fakeIndexer{indexErr: errors.New("embedding timeout")})
	err = transient.ProcessIndex(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestProcessRemove(t *testing.T) {
	id := uuid.New()
	task, err := queue.NewDocumentRemoveTask(id)
	require.NoError(t, err)

	idx := &fakeIndexer{}
	require.NoError(t, NewDocumentWorker(idx).ProcessRemove(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, idx.removed)

	gone := NewDocumentWorker(&fakeIndexer{rmErr: vectorstore.ErrDocumentNotFound})
	assert.NoError(t, gone.ProcessRemove(context.Background(), task))
}

func TestRegisterRoutesBothTaskTypes(t *testing.T) {
	r := queue.NewHandlersRegistry()
	NewDocumentWorker(&fakeIndexer{}).Register(r)

	for _, typ := range []string{queue.TypeDocumentIndex, queue.TypeDocumentRemove} {
		_, pattern := r.Mux().Handler(asynq.NewTask(typ, nil))
		assert.Equal(t, typ, pattern)
	}
	assert.Equal(t, []string{queue.TypeDocumentIndex, queue.TypeDocumentRemove}, r.Types())
}

func TestMuxPropagatesHandlerErrors(t *testing.T) {
	r := queue.NewHandlersRegistry()
	NewDocumentWorker(&fakeIndexer{rmErr: errors.New("db down")}).Register(r)
	task, err := queue.NewDocumentRemoveTask(uuid.New())
	require.NoError(t, err)

	err = r.Mux().ProcessTask(context.Background(), task)

	assert.ErrorContains(t, err, "db down")
}
