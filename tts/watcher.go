package tts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches the config file at path and applies the result of
// load whenever it is written. It blocks until ctx is cancelled.
func (s *Speaker) WatchConfig(ctx context.Context, path string, load func() (Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error watching %s: %w", dir, err)
	}
	s.logger.Debug("watching config", "file", path)

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			s.logger.Debug("config changed", "file", event.Name, "event", event.Op)

			cfg, err := load()
			if err != nil {
				s.logger.Error("could not reload config", "error", err)
				continue
			}
			if err := s.ApplyConfig(cfg); err != nil {
				s.logger.Error("could not apply config", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("config watcher error", "error", err)
		}
	}
}
