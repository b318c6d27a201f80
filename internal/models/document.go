package models

import (
	"time"

	"github.com/google/uuid"
)

// Indexable is any piece of site content that can be searched or embedded.
// The retrieval and indexing code depends only on this, never on concrete
// record types.
type Indexable interface {
	IndexableText() (title, category, content string)
}

// Dated content can be ordered by recency.
type Dated interface {
	RecordDate() time.Time
}

type Document struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Category    string    `json:"category" db:"category"`
	Content     string    `json:"content" db:"content"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	IsProcessed bool      `json:"is_processed" db:"is_processed"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

func (d Document) IndexableText() (string, string, string) {
	return d.Title, d.Category, d.Content
}

// RecordDate is the time the content last changed.
func (d Document) RecordDate() time.Time { return d.UpdatedAt }

// Record is a structured site record (FAQ pair, program, staff profile,
// activity) exposed to keyword search.
type Record struct {
	Kind     string    `json:"kind" yaml:"kind"`
	Title    string    `json:"title" yaml:"title"`
	Category string    `json:"category" yaml:"category"`
	Body     string    `json:"body" yaml:"body"`
	Date     time.Time `json:"date" yaml:"date"`
}

func (r Record) IndexableText() (string, string, string) {
	return r.Title, r.Category, r.Body
}

func (r Record) RecordDate() time.Time { return r.Date }
