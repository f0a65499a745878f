package serverstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the store's backing file and invokes onChange with the
// names whose descriptors changed whenever the file is rewritten. The watch
// runs until ctx is cancelled. Events are debounced because editors and
// atomic renames produce bursts.
//
// The parent directory is watched rather than the file itself so that
// rename-over-write (which this store and most editors use) keeps the watch
// alive.
func Watch(ctx context.Context, store *Store, logger *slog.Logger, onChange func(names []string)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("serverstore: watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(store.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("serverstore: watch %s: %w", dir, err)
	}
	target := filepath.Base(store.Path())

	const debounce = 100 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", "error", err)
		case <-timerCh:
			timer = nil
			timerCh = nil
			changed, err := store.Reload()
			if err != nil {
				logger.Warn("config reload failed", "path", store.Path(), "error", err)
				continue
			}
			if len(changed) > 0 {
				logger.Info("config changed", "servers", changed)
				onChange(changed)
			}
		}
	}
}
