package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/schoolrag/internal/config"
)

func TestOpen_AutoFallsBackToSQLite(t *testing.T) {
	cfg := config.VectorStoreConfig{
		Backend:    "auto",
		Collection: "school_chunks",
		SQLitePath: filepath.Join(t.TempDir(), "data", "vectors.db"),
	}

	store, err := Open(context.Background(), cfg, 4, nil)
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &SQLiteStore{}, store)
	assert.Equal(t, ModeFallback, store.Mode())
	assert.Equal(t, 4, store.Dimension())
}

func TestOpen_RejectsBadBackends(t *testing.T) {
	_, err := Open(context.Background(), config.VectorStoreConfig{Backend: "pgvector"}, 4, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), config.VectorStoreConfig{Backend: "milvus"}, 4, nil)
	assert.Error(t, err)
}
