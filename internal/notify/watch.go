package notify

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watch hot-reloads the channel registry when the config file changes.
// It blocks until ctx is cancelled.
//
// The parent directory is watched rather than the file itself, so
// editors that replace the file on save still trigger a reload. A
// config that fails to parse is logged and skipped; the dispatcher
// keeps the last good channel set.
func (d *Dispatcher) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	d.log.Info("watching notify config", "path", path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				d.reloadFrom(path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("notify config watcher error", "error", err)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) reloadFrom(path string) {
	cfg, err := LoadConfig(path)
	if err != nil {
		d.log.Warn("notify config reload failed, keeping last good config",
			"path", path, "error", err)
		return
	}
	d.Reload(cfg)
	d.log.Info("notify config reloaded", "path", path, "channels", len(cfg.Channels))
}
