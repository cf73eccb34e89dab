package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads workflow definitions when their files change. It
// backs the dev command's edit-save-rerun loop.
type Watcher struct {
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
	delay   time.Duration
}

// NewWatcher creates a new definition watcher.
func NewWatcher(logger zerolog.Logger) *Watcher {
	return &Watcher{
		logger: logger.With().Str("component", "workflow-watcher").Logger(),
		delay:  500 * time.Millisecond,
	}
}

// Watch watches a workflow file or directory and invokes onChange with
// each definition that reloads cleanly after a change. Load failures
// are logged and skipped so a mid-edit save does not stop the watch.
// Watch returns after starting the background loop; it stops when ctx
// is cancelled.
func (w *Watcher) Watch(ctx context.Context, path string, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.watcher = watcher

	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	go w.processEvents(ctx, onChange)

	w.logger.Info().Str("path", path).Msg("Watching workflow definitions")
	return nil
}

// processEvents debounces file system events per path and invokes the
// change callback.
func (w *Watcher) processEvents(ctx context.Context, onChange func(path string)) {
	timers := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isWorkflowFile(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Workflow file changed")

			// Editors fire several events per save, collapse them.
			if t, exists := timers[event.Name]; exists {
				t.Stop()
			}
			changed := event.Name
			timers[changed] = time.AfterFunc(w.delay, func() {
				onChange(changed)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func isWorkflowFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".cue":
		return true
	default:
		return false
	}
}
