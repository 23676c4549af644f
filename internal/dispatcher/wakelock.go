package dispatcher

import (
	"log/slog"
	"sync"
)

// WakeLock is a reference counted "keep awake" resource shared by all runs.
// onAcquire fires on the 0->1 transition and onRelease on 1->0.
type WakeLock struct {
	logger    *slog.Logger
	onAcquire func()
	onRelease func()

	mu    sync.Mutex
	count int
}

// NewWakeLock creates a WakeLock. Either hook may be nil.
func NewWakeLock(logger *slog.Logger, onAcquire, onRelease func()) *WakeLock {
	return &WakeLock{
		logger:    logger,
		onAcquire: onAcquire,
		onRelease: onRelease,
	}
}

// Acquire takes a reference. The returned release func is safe to call more
// than once; only the first call drops the reference.
func (w *WakeLock) Acquire() (release func()) {
	w.mu.Lock()
	w.count++
	first := w.count == 1
	if first && w.onAcquire != nil {
		w.onAcquire()
	}
	w.mu.Unlock()

	if first {
		w.logger.Debug("wake lock acquired")
	}

	var once sync.Once
	return func() {
		once.Do(w.release)
	}
}

func (w *WakeLock) release() {
	w.mu.Lock()
	if w.count == 0 {
		w.mu.Unlock()
		w.logger.Warn("wake lock released more often than acquired")
		return
	}
	w.count--
	last := w.count == 0
	if last && w.onRelease != nil {
		w.onRelease()
	}
	w.mu.Unlock()

	if last {
		w.logger.Debug("wake lock released")
	}
}

// Held reports whether any run holds the lock.
func (w *WakeLock) Held() bool {
	return w.Count() > 0
}

// Count returns the number of outstanding references.
func (w *WakeLock) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
