package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// PgStore keeps chunks in a Postgres table. In native mode the embedding
// column is a pgvector vector(N) and ranking happens in the database; in
// fallback mode it is a real[] and every active row is ranked in process.
type PgStore struct {
	db         *pgxpool.Pool
	collection string
	table      string
	dimension  int

	// mode set before the collection exists is used instead of probing.
	mode Mode
}

func NewPgStore(db *pgxpool.Pool, collection string, dimension int) *PgStore {
	return &PgStore{
		db:         db,
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
		dimension:  dimension,
	}
}

func (s *PgStore) Mode() Mode { return s.mode }
func (s *PgStore) Dimension() int { return s.dimension }
func (s *PgStore) Close() error { return nil }

// EnsureCollection fixes the collection's dimension and mode on first call.
// An existing collection keeps the mode it was created with.
func (s *PgStore) EnsureCollection(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vector_collections (
			name TEXT PRIMARY KEY,
			dimension INT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		)`)
	if err != nil && !alreadyExists(err) {
		return fmt.Errorf("create vector_collections: %w", err)
	}

	dim, mode, found, err := s.lookupCollection(ctx)
	if err != nil {
		return err
	}
	if !found {
		mode = s.mode
		if mode == "" {
			mode = s.probeMode(ctx)
		}
		if err := s.createCollection(ctx, mode); err != nil {
			return err
		}
		// Another process may have won the race with a different mode.
		if dim, mode, found, err = s.lookupCollection(ctx); err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("collection %s missing after create", s.collection)
		}
	}

	if dim != s.dimension {
		return fmt.Errorf("collection %s: %w: created with %d, configured %d", s.collection, ErrDimensionMismatch, dim, s.dimension)
	}
	s.mode = mode
	slog.Info("vector collection ready", "backend", "postgres", "collection", s.collection, "dimension", dim, "mode", mode)
	return nil
}

func (s *PgStore) lookupCollection(ctx context.Context) (int, Mode, bool, error) {
	var (
		dim  int
		mode string
	)
	err := s.db.QueryRow(ctx,
		"SELECT dimension, mode FROM vector_collections WHERE name = $1", s.collection,
	).Scan(&dim, &mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("lookup collection %s: %w", s.collection, err)
	}
	return dim, Mode(mode), true, nil
}

// probeMode reports whether the vector extension can be used.
func (s *PgStore) probeMode(ctx context.Context) Mode {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil && !alreadyExists(err) {
		slog.Warn("pgvector unavailable, using brute-force search", "error", err)
		return ModeFallback
	}
	return ModeNative
}

func (s *PgStore) createCollection(ctx context.Context, mode Mode) error {
	column := "real[]"
	if mode == ModeNative {
		column = fmt.Sprintf("vector(%d)", s.dimension)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			seq BIGSERIAL,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INT NOT NULL,
			content TEXT NOT NULL,
			token_count INT NOT NULL DEFAULT 0,
			embedding %s NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		)`, s.table, column)
	if _, err := s.db.Exec(ctx, ddl); err != nil && !alreadyExists(err) {
		return fmt.Errorf("create collection table: %w", err)
	}

	idx := pgx.Identifier{s.collection + "_document_id_idx"}.Sanitize()
	if _, err := s.db.Exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (document_id)", idx, s.table)); err != nil && !alreadyExists(err) {
		return fmt.Errorf("create document index: %w", err)
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO vector_collections (name, dimension, mode) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		s.collection, s.dimension, string(mode),
	)
	if err != nil {
		return fmt.Errorf("register collection: %w", err)
	}
	return nil
}

func (s *PgStore) Upsert(ctx context.Context, doc models.Document, chunks []ChunkInput) error {
	if err := validate(s.dimension, chunks); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO documents (id, title, category, content, is_active, is_processed)
		 VALUES ($1, $2, $3, $4, $5, false)
		 ON CONFLICT (id) DO UPDATE SET title = $2, category = $3, content = $4,
		     is_active = $5, is_processed = false, updated_at = now()`,
		doc.ID, doc.Title, doc.Category, doc.Content, doc.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", s.table), doc.ID); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	insert := fmt.Sprintf(
		`INSERT INTO %s (id, document_id, chunk_index, content, token_count, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)`, s.table)
	for i, c := range chunks {
		var embedding any = c.Embedding
		if s.mode == ModeNative {
			embedding = pgvector.NewVector(c.Embedding)
		}
		if _, err := tx.Exec(ctx, insert, uuid.New(), doc.ID, i, c.Content, c.TokenCount, embedding); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(ctx, "UPDATE documents SET is_processed = true WHERE id = $1", doc.ID); err != nil {
		return fmt.Errorf("mark document processed: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PgStore) Search(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("search: %w: got %d, collection has %d", ErrDimensionMismatch, len(query), s.dimension)
	}
	opts = opts.withDefaults()
	if isZero(query) {
		return []SearchResult{}, nil
	}
	if s.mode == ModeNative {
		return s.searchNative(ctx, query, opts)
	}
	return s.searchFallback(ctx, query, opts)
}

func (s *PgStore) searchNative(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.seq,
		        d.title, d.category, 1 - (c.embedding <=> $1) AS similarity
		 FROM %s c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.is_active
		   AND (c.embedding <=> $1) <> 'NaN'
		   AND 1 - (c.embedding <=> $1) >= $2
		 ORDER BY c.embedding <=> $1, c.seq
		 LIMIT $3`, s.table),
		pgvector.NewVector(query), opts.threshold(), opts.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.ChunkIndex, &r.Chunk.Content,
			&r.Chunk.TokenCount, &r.Chunk.Seq, &r.Title, &r.Category, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search rows: %w", err)
	}
	// Float rounding in the database can reorder near-equal scores.
	sortResults(results)
	return results, nil
}

func (s *PgStore) searchFallback(ctx context.Context, query []float32, opts SearchOptions) ([]SearchResult, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT c.id, c.document_id, c.chunk_index, c.content, c.token_count, c.seq,
		        c.embedding, d.title, d.category
		 FROM %s c
		 JOIN documents d ON d.id = c.document_id
		 WHERE d.is_active
		 ORDER BY c.seq`, s.table),
	)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Chunk.ID, &c.Chunk.DocumentID, &c.Chunk.ChunkIndex, &c.Chunk.Content,
			&c.Chunk.TokenCount, &c.Chunk.Seq, &c.Chunk.Embedding, &c.Title, &c.Category); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load chunks rows: %w", err)
	}
	return Rank(candidates, query, opts), nil
}

func (s *PgStore) SetDocumentActive(ctx context.Context, documentID uuid.UUID, active bool) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE documents SET is_active = $2, updated_at = now() WHERE id = $1", documentID, active)
	if err != nil {
		return fmt.Errorf("set document active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	return nil
}

// DeleteDocument removes the document; its chunks go with it via the
// foreign key cascade.
func (s *PgStore) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM documents WHERE id = $1", documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrDocumentNotFound)
	}
	return nil
}

func (s *PgStore) ListActiveDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, title, category, content, is_active, is_processed, created_at, updated_at
		 FROM documents WHERE is_active ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Category, &d.Content, &d.IsActive, &d.IsProcessed, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// alreadyExists matches the errors concurrent creators get when another
// session created the same object first.
func alreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "42P07", "42710", "23505":
		return true
	}
	return false
}
