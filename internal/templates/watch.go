package templates

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/trellis-tracker/trellis/internal/config"
	"github.com/trellis-tracker/trellis/internal/debug"
)

// WatchDebounce is how long Watch waits after the last change before reloading.
var WatchDebounce = 250 * time.Millisecond

// Watch reloads the registry whenever a pack document, a project template or
// the config document changes. It blocks until ctx is cancelled. onReload,
// if non-nil, is called after every reload attempt.
func (r *Registry) Watch(ctx context.Context, onReload func(error)) error {
	dir := r.Dir()
	if dir == "" {
		return errors.New("registry was not loaded from a project directory")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	for _, sub := range []string{PacksDir, TemplatesDir} {
		// Subdirectories are optional; a later Create on dir re-adds them.
		_ = watcher.Add(filepath.Join(dir, sub))
	}

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(event.Name)
			if event.Has(fsnotify.Create) && (base == PacksDir || base == TemplatesDir) {
				_ = watcher.Add(event.Name)
				continue
			}
			if !relevant(dir, event.Name) {
				continue
			}
			debug.Logf("templates: %s %s\n", event.Op, event.Name)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounce, func() {
				err := r.Reload()
				if err != nil {
					debug.Warn("registry reload failed", "error", err)
				}
				if onReload != nil {
					onReload(err)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.Warn("template watcher error", "error", err)
		}
	}
}

func relevant(dir, name string) bool {
	parent := filepath.Base(filepath.Dir(name))
	if filepath.Dir(name) == filepath.Clean(dir) {
		return filepath.Base(config.Path(dir)) == filepath.Base(name)
	}
	return (parent == PacksDir || parent == TemplatesDir) && SupportedExtension(name)
}
