package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file and calls onChange with the freshly loaded
// configuration whenever it is modified. Reload failures are logged and the
// previous configuration stays in effect. Watch returns immediately; the
// watcher stops when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	logger.Info("watching config file", slog.String("path", path))

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Error("config reload failed, keeping previous",
						slog.String("path", path), slog.String("error", err.Error()))
					continue
				}
				logger.Info("config reloaded", slog.String("path", path))
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
