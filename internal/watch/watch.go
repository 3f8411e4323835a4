// Package watch re-runs a job whenever one input file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Runs          int
	Failures      int
	LastEventTime time.Time
	LastEventType string
}

// Watcher watches the directory holding a single file and calls OnChange once
// per burst of changes to that file. Editors often replace files by rename, so
// the directory is watched rather than the file itself.
type Watcher struct {
	mu       sync.Mutex
	path     string
	dir      string
	debounce time.Duration
	onChange func(context.Context) error
	log      *zap.Logger
	pending  time.Time
	stats    Stats
}

// New creates a watcher for path. onChange runs on the watcher's goroutine, so
// a burst that arrives while it is running triggers exactly one more call.
func New(path string, debounce time.Duration, onChange func(context.Context) error, log *zap.Logger) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("watch: onChange is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		debounce: debounce,
		onChange: onChange,
		log:      log,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run blocks until ctx is done. Failures of onChange are logged and counted;
// only setup errors are returned.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.log.Error("watch: error closing watcher", zap.Error(err))
		}
	}()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	w.log.Info("watch: watching", zap.String("path", w.path), zap.Duration("debounce", w.debounce))

	ticker := time.NewTicker(tickInterval(w.debounce))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch: stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch: watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Failures++
			w.mu.Unlock()

		case <-ticker.C:
			w.fireIfSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	w.log.Debug("watch: event", zap.String("type", eventType), zap.String("path", event.Name))

	now := time.Now()
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventType = eventType
	// A delete or rename alone leaves nothing to read; wait for the create.
	if eventType == "create" || eventType == "modify" {
		w.pending = now
	}
	w.mu.Unlock()
}

func (w *Watcher) fireIfSettled(ctx context.Context) {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.stats.Runs++
	w.mu.Unlock()

	if err := w.onChange(ctx); err != nil {
		w.log.Error("watch: run failed", zap.Error(err))
		w.mu.Lock()
		w.stats.Failures++
		w.mu.Unlock()
	}
}

func tickInterval(debounce time.Duration) time.Duration {
	d := debounce / 4
	switch {
	case d < 10*time.Millisecond:
		return 10 * time.Millisecond
	case d > 100*time.Millisecond:
		return 100 * time.Millisecond
	}
	return d
}
