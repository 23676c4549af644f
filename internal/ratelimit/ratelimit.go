// Package ratelimit provides a keyed token bucket limiter. Buckets of keys
// that stay idle are evicted in the background.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
// Each unique key gets its own independent rate limiter.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a keyed rate limiter allowing rps requests per second with the
// given burst. Buckets unused for idle are dropped; idle <= 0 keeps them
// forever.
func New(rps float64, burst int, idle time.Duration) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	if idle > 0 {
		go krl.cleanup()
	}

	return krl
}

// PerMinute creates a limiter from a per-minute budget, the unit used in
// configuration.
func PerMinute(perMinute, burst int) *KeyedRateLimiter {
	return New(float64(perMinute)/time.Minute.Seconds(), burst, 10*time.Minute)
}

// Allow checks if a request for the given key should be allowed.
// Returns immediately without blocking.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key).Allow()
}

// Wait blocks until a request for the given key is allowed or ctx is canceled.
func (krl *KeyedRateLimiter) Wait(ctx context.Context, key string) error {
	return krl.getLimiter(key).Wait(ctx)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

func (krl *KeyedRateLimiter) getLimiter(key string) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	e, ok := krl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = krl.now()
	return e.limiter
}

// Evict drops buckets idle for longer than the configured idle time and
// returns how many were removed.
func (krl *KeyedRateLimiter) Evict() int {
	if krl.idle <= 0 {
		return 0
	}
	cutoff := krl.now().Add(-krl.idle)

	krl.mu.Lock()
	defer krl.mu.Unlock()

	removed := 0
	for key, e := range krl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(krl.limiters, key)
			removed++
		}
	}
	return removed
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(krl.idle)
	defer ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-ticker.C:
			krl.Evict()
		}
	}
}
