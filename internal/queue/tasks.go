package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

const (
	TypeDocumentIndex  = "document:index"
	TypeDocumentRemove = "document:remove"
)

// DocumentIndexPayload carries the whole document so the worker needs no
// read-back from the content database.
type DocumentIndexPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DocumentRemovePayload struct {
	DocumentID string `json:"document_id"`
}

func NewDocumentIndexTask(doc models.Document) (*asynq.Task, error) {
	data, err := json.Marshal(DocumentIndexPayload{
		ID:        doc.ID.String(),
		Title:     doc.Title,
		Category:  doc.Category,
		Content:   doc.Content,
		IsActive:  doc.IsActive,
		UpdatedAt: doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentIndex, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

func NewDocumentRemoveTask(id uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(DocumentRemovePayload{DocumentID: id.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentRemove, data, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// Document converts the payload back into a document.
func (p DocumentIndexPayload) Document() (models.Document, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return models.Document{}, fmt.Errorf("parse document ID: %w", err)
	}
	return models.Document{
		ID:        id,
		Title:     p.Title,
		Category:  p.Category,
		Content:   p.Content,
		IsActive:  p.IsActive,
		UpdatedAt: p.UpdatedAt,
	}, nil
}
