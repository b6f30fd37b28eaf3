package mapview

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchCatalog reloads the catalog file whenever it changes and passes
// each valid result to onChange. Invalid files are logged and skipped.
// It blocks until ctx is done.
func WatchCatalog(ctx context.Context, path string, log *zap.Logger, onChange func(Catalog)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors replace files rather than write them.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}
			catalog, err := LoadCatalog(path)
			if err != nil {
				log.Warn("catalog reload failed", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("catalog reloaded", zap.String("path", path), zap.Int("styles", len(catalog)))
			onChange(catalog)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("catalog watcher error", zap.Error(err))
		}
	}
}
