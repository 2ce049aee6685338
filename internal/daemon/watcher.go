package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// InputWatcher monitors the input path and triggers a rebuild when it changes.
// Rapid bursts of filesystem events are debounced into a single trigger.
type InputWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func()
	debounce time.Duration
	stopChan chan struct{}
}

// NewInputWatcher creates a watcher over the directory containing path.
// Watching the directory is more reliable than watching the file itself,
// since editors replace files on save.
func NewInputWatcher(path string, onChange func()) (*InputWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to resolve input path: %w", err)
	}

	return &InputWatcher{
		path:     absPath,
		watcher:  w,
		onChange: onChange,
		debounce: 2 * time.Second,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins monitoring and returns immediately.
func (w *InputWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	slog.Info("Watching input for changes", "path", w.path)
	go w.loop(ctx)
	return nil
}

// Stop ends monitoring.
func (w *InputWatcher) Stop() {
	close(w.stopChan)
	w.watcher.Close()
}

func (w *InputWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			slog.Debug("Input change detected", "path", event.Name, "op", event.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.onChange)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "error", err)
		}
	}
}

func (w *InputWatcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	// Only the watched file matters; the directory watch sees siblings too.
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return abs == w.path
}
