package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// SQLiteStore is an embedded store for deployments without Postgres or
// Qdrant. Embeddings are kept as little-endian float32 blobs and every search
// is a brute-force scan.
type SQLiteStore struct {
	db         *sql.DB
	path       string
	collection string
	dimension  int
}

func NewSQLiteStore(path, collection string, dimension int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &SQLiteStore{db: db, path: path, collection: collection, dimension: dimension}, nil
}

func (s *SQLiteStore) Mode() Mode { return ModeFallback }
func (s *SQLiteStore) Dimension() int { return s.dimension }
func (s *SQLiteStore) Path() string { return s.path }
func (s *SQLiteStore) Close() error { return s.db.Close() }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS vector_collections (
	name TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	mode TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	is_processed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (collection, document_id);
`

func (s *SQLiteStore) EnsureCollection(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO vector_collections (name, dimension, mode, created_at) VALUES (?, ?, ?, ?)",
		s.collection, s.dimension, string(ModeFallback), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("register collection: %w", err)
	}

	var dim int
	if err := s.db.QueryRowContext(ctx,
		"SELECT dimension FROM vector_collections WHERE name = ?", s.collection,
	).Scan(&dim); err != nil {
		return fmt.Errorf("lookup collection %s: %w", s.collection, err)
	}
	if dim != s.dimension {
		return fmt.Errorf("collection %s: %w: created with %d, configured %d", s.collection, ErrDimensionMismatch, dim, s.dimension)
	}
	slog.Info("vector collection ready", "backend", "sqlite", "path", s.path, "collection", s.collection, "dimension", dim)
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, doc models.Document, chunks []ChunkInput) error {
	if err := validate(s.dimension, chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, title, category, content, is_active, is_processed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET title = excluded.title, category = excluded.category,
		     content = excluded.content, is_active = excluded.is_active, is_processed = 0,
		     updated_at = excluded.updated_at`,
		doc.ID.String(), doc.Title, doc.Category, doc.Content, doc.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE collection = ? AND document_id = ?", s.collection, doc.ID.String(),
	); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	for i, c := range chunks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, collection, document_id, chunk_index, content, token_count, embedding)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), s.collection, doc.ID.String(), i, c.Content, c.TokenCount, encodeEmbedding(c.Embedding),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE documents SET is_processed = 1 WHERE id = ?", doc.ID.String()); err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("search: %w: got %d, collection has %d", ErrDimensionMismatch, len(query), s.dimension)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.seq, c.embedding,
		        d.title, d.category
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.collection = ? AND d.is_active = 1
		 ORDER BY c.seq`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var (
			c            Candidate
			id, docID    string
			embeddingRaw []byte
		)
		if err := rows.Scan(&id, &docID, &c.Chunk.ChunkIndex, &c.Chunk.Content, &c.Chunk.TokenCount,
			&c.Chunk.Seq, &embeddingRaw, &c.Title, &c.Category); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Chunk.ID, _ = uuid.Parse(id)
		c.Chunk.DocumentID, _ = uuid.Parse(docID)
		c.Chunk.Embedding = decodeEmbedding(embeddingRaw)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load chunks rows: %w", err)
	}

	return Rank(candidates, query, opts), nil
}

func (s *SQLiteStore) SetDocumentActive(ctx context.Context, documentID uuid.UUID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UnixMilli(), documentID.String())
	if err != nil {
		return fmt.Errorf("set document active: %w", err)
	}
	return requireAffected(res, documentID)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", documentID.String())
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireAffected(res, documentID)
}

// CountChunks returns how many chunks the collection holds for a document.
func (s *SQLiteStore) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ? AND document_id = ?",
		s.collection, documentID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	var (
		d                models.Document
		id               string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, category, content, is_active, is_processed, created_at, updated_at
		 FROM documents WHERE id = ?`, documentID.String(),
	).Scan(&id, &d.Title, &d.Category, &d.Content, &d.IsActive, &d.IsProcessed, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	d.ID, _ = uuid.Parse(id)
	d.CreatedAt = time.UnixMilli(created)
	d.UpdatedAt = time.UnixMilli(updated)
	return &d, nil
}

func (s *SQLiteStore) ListActiveDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, category, content, is_active, is_processed, created_at, updated_at
		 FROM documents WHERE is_active = 1 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var (
			d                models.Document
			id               string
			created, updated int64
		)
		if err := rows.Scan(&id, &d.Title, &d.Category, &d.Content, &d.IsActive, &d.IsProcessed, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID, _ = uuid.Parse(id)
		d.CreatedAt = time.UnixMilli(created)
		d.UpdatedAt = time.UnixMilli(updated)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func requireAffected(res sql.Result, documentID uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	return nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
