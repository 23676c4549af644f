// Package watcher notices changes below the backup root and asks for a
// rescan once the tree has been quiet for a while.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher wraps fsnotify with recursive directory watches and debouncing.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	root    string
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for root. Every directory below root is watched.
func New(root string, logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		logger:  logger,
		opts:    opts,
		root:    filepath.Clean(root),
		watcher: fw,
	}
	if err := w.watchTree(w.root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return fmt.Errorf("failed to access %s: %w", p, err)
			}
			w.logger.Warn("failed to access path", "path", p, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}
		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

func (w *Watcher) ignored(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	return w.opts.shouldIgnore(rel)
}

// Run delivers debounced change notifications to onChange until ctx is done.
// onChange runs on a timer goroutine, never concurrently with itself.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.stopTimer()

	var fire sync.Mutex
	trigger := func() {
		fire.Lock()
		defer fire.Unlock()
		if ctx.Err() == nil {
			onChange()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event, trigger)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event, trigger func()) {
	if w.ignored(event.Name) {
		return
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	// New package directories need their own watch.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watchTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}

	w.logger.Debug("backup root changed", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.opts.Debounce, trigger)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}
