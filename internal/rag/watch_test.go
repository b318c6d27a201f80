package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecords(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func recordTitles(t *testing.T, src *StaticSource) []string {
	t.Helper()
	records, err := src.Records(context.Background())
	require.NoError(t, err)
	titles := make([]string, 0, len(records))
	for _, r := range records {
		title, _, _ := r.IndexableText()
		titles = append(titles, title)
	}
	return titles
}

func TestRecordsWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	writeRecords(t, path, "faq:\n  - title: Seragam\n    body: Senin putih merah.\nprogram:\n  - title: Tahfidz\n")
	sources, err := LoadRecords(path)
	require.NoError(t, err)

	rw, err := NewRecordsWatcher(path, sources)
	require.NoError(t, err)
	defer rw.Close()
	reloads := 0
	rw.OnReload(func(context.Context) { reloads++ })

	writeRecords(t, path, "faq:\n  - title: Seragam\n  - title: Jam masuk\nstaff:\n  - title: Kepala sekolah\n")
	require.NoError(t, rw.Reload(context.Background()))

	assert.Equal(t, []string{"Seragam", "Jam masuk"}, recordTitles(t, sources[0]))
	assert.Empty(t, recordTitles(t, sources[1]))
	assert.Equal(t, 1, reloads)
}

func TestRecordsWatcher_BadFileKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	writeRecords(t, path, "faq:\n  - title: Seragam\n")
	sources, err := LoadRecords(path)
	require.NoError(t, err)
	rw, err := NewRecordsWatcher(path, sources)
	require.NoError(t, err)
	defer rw.Close()

	writeRecords(t, path, "faq: [unclosed")

	assert.Error(t, rw.Reload(context.Background()))
	assert.Equal(t, []string{"Seragam"}, recordTitles(t, sources[0]))
}

func TestRecordsWatcher_RunPicksUpWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	writeRecords(t, path, "faq:\n  - title: Lama\n")
	sources, err := LoadRecords(path)
	require.NoError(t, err)
	rw, err := NewRecordsWatcher(path, sources)
	require.NoError(t, err)
	defer rw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rw.Run(ctx)

	writeRecords(t, path, "faq:\n  - title: Baru\n")

	assert.Eventually(t, func() bool {
		records, _ := sources[0].Records(ctx)
		if len(records) != 1 {
			return false
		}
		title, _, _ := records[0].IndexableText()
		return title == "Baru"
	}, 2*time.Second, 20*time.Millisecond)
}
