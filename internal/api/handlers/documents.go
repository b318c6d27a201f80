package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// DocumentQueue schedules indexing work for the worker.
type DocumentQueue interface {
	EnqueueDocumentIndex(ctx context.Context, doc models.Document) (string, error)
	EnqueueDocumentRemove(ctx context.Context, id uuid.UUID) (string, error)
}

type DocumentHandler struct {
	queue DocumentQueue
}

func NewDocumentHandler(q DocumentQueue) *DocumentHandler {
	return &DocumentHandler{queue: q}
}

type documentRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// Index enqueues (re)indexing of a document. A missing id creates a new
// document; an existing id replaces its chunks.
func (h *DocumentHandler) Index(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "title and content required")
		return
	}

	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid document id")
			return
		}
		id = parsed
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	doc := models.Document{
		ID:        id,
		Title:     strings.TrimSpace(req.Title),
		Category:  strings.TrimSpace(req.Category),
		Content:   req.Content,
		IsActive:  active,
		UpdatedAt: time.Now().UTC(),
	}
	taskID, err := h.queue.EnqueueDocumentIndex(r.Context(), doc)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not schedule indexing")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id.String(), "task_id": taskID})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	taskID, err := h.queue.EnqueueDocumentRemove(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not schedule removal")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id.String(), "task_id": taskID})
}
