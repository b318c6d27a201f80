package rag

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/nikhilbhutani/schoolrag/internal/models"
)

// RecordsWatcher reloads a records file into existing sources whenever the
// file changes. Kinds absent from the new file are emptied; kinds with no
// matching source are ignored until restart. A file that fails to parse
// leaves the current records in place.
type RecordsWatcher struct {
	path     string
	sources  map[string]*StaticSource
	watcher  *fsnotify.Watcher
	onReload func(ctx context.Context)
}

func NewRecordsWatcher(path string, sources []*StaticSource) (*RecordsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched since saves may replace the file.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	byName := make(map[string]*StaticSource, len(sources))
	for _, s := range sources {
		byName[s.Name()] = s
	}
	return &RecordsWatcher{path: filepath.Clean(path), sources: byName, watcher: w}, nil
}

// OnReload registers fn to run after every successful reload.
func (rw *RecordsWatcher) OnReload(fn func(ctx context.Context)) {
	rw.onReload = fn
}

// Run processes file events until ctx is cancelled or the watcher is closed.
func (rw *RecordsWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != rw.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if err := rw.Reload(ctx); err != nil {
				slog.Warn("records reload failed, keeping previous records", "path", rw.path, "error", err)
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("records watcher error", "error", err)
		}
	}
}

// Reload reads the file once and swaps the records of every known kind.
func (rw *RecordsWatcher) Reload(ctx context.Context) error {
	loaded, err := LoadRecords(rw.path)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(loaded))
	for _, l := range loaded {
		seen[l.Name()] = true
		target, ok := rw.sources[l.Name()]
		if !ok {
			slog.Warn("new record kind ignored until restart", "kind", l.Name())
			continue
		}
		records, _ := l.Records(ctx)
		target.Replace(records)
	}
	for name, s := range rw.sources {
		if !seen[name] {
			s.Replace([]models.Indexable{})
		}
	}

	slog.Info("records reloaded", "path", rw.path, "kinds", len(loaded))
	if rw.onReload != nil {
		rw.onReload(ctx)
	}
	return nil
}

func (rw *RecordsWatcher) Close() error {
	return rw.watcher.Close()
}
