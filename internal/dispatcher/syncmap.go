package dispatcher

import "sync"

// SyncMap is a type-safe concurrent map.
//
// It uses a RWMutex rather than sync.Map because every write path here needs
// a conditional update under the same lock as the check.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

// NewSyncMap creates a new type-safe concurrent map.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value stored for key. ok reports whether it was present.
func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	value, ok = sm.m[key]
	return
}

// LoadOrStore returns the existing value for the key if present.
// Otherwise, it stores and returns the given value.
// The loaded result is true if the value was loaded, false if stored.
func (sm *SyncMap[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if actual, loaded = sm.m[key]; loaded {
		return actual, true
	}
	sm.m[key] = value
	return value, false
}

// Update replaces the value for a present key with fn(old).
// It returns false when the key is absent.
func (sm *SyncMap[K, V]) Update(key K, fn func(V) V) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	old, ok := sm.m[key]
	if !ok {
		return false
	}
	sm.m[key] = fn(old)
	return true
}

// DeleteIf removes key only when match accepts its current value.
func (sm *SyncMap[K, V]) DeleteIf(key K, match func(V) bool) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	v, ok := sm.m[key]
	if !ok || !match(v) {
		return false
	}
	delete(sm.m, key)
	return true
}

// Values returns a copy of all values in unspecified order.
func (sm *SyncMap[K, V]) Values() []V {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]V, 0, len(sm.m))
	for _, v := range sm.m {
		out = append(out, v)
	}
	return out
}

// Len returns the number of items in the map.
func (sm *SyncMap[K, V]) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}
