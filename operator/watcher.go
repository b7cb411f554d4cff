package operator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is how long the watcher waits for further writes before
// reloading a schema file.
const defaultDebounce = 500 * time.Millisecond

// SchemaWatcher hot-reloads operator schema declarations when the file
// changes, so new operator versions register without a restart.
type SchemaWatcher struct {
	registry *SchemaRegistry
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewSchemaWatcher creates a watcher for a schema YAML file.
func NewSchemaWatcher(registry *SchemaRegistry, path string, logger *slog.Logger) *SchemaWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaWatcher{
		registry: registry,
		path:     path,
		debounce: defaultDebounce,
		logger:   logger,
	}
}

// Watch loads the file once, then blocks reloading on changes until ctx is
// cancelled. Reload failures are logged and the previous schemas stay active.
func (w *SchemaWatcher) Watch(ctx context.Context) error {
	if err := w.registry.LoadFile(w.path); err != nil {
		return fmt.Errorf("initial schema load: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file rather than write
	// in place, which drops the watch on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch schema dir: %w", err)
	}

	w.logger.Info("Watching operator schemas", "path", w.path)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if err := w.registry.LoadFile(w.path); err != nil {
				w.logger.Warn("Schema reload failed, keeping previous schemas",
					"path", w.path, "error", err)
				continue
			}
			w.logger.Info("Operator schemas reloaded", "path", w.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Schema watcher error", "error", err)
		}
	}
}
