package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes.
type Watcher struct {
	path   string
	logger *slog.Logger
}

// NewWatcher creates a watcher for path (DefaultPath when empty).
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, logger: logger}
}

// Run watches until ctx is done, calling onChange with every configuration
// that loads cleanly. The directory is watched rather than the file so that
// editors which replace the file on save are still seen.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	w.logger.Info("watching config file for changes", slog.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Info("config file changed, reloading", slog.String("path", event.Name))
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error("failed to reload config",
					slog.String("error", err.Error()),
					slog.String("path", w.path))
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watch error", slog.String("error", err.Error()))
		}
	}
}
