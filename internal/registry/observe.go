package registry

import (
	"context"
	"slices"
	"sync"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// subscriber coalesces changes until its reader catches up, so a slow reader
// never blocks writers and never loses a touched key.
type subscriber struct {
	mu      sync.Mutex
	pending Change
	has     bool
	wake    chan struct{}
}

func newSubscriber() *subscriber {
	return &subscriber{wake: make(chan struct{}, 1)}
}

func (s *subscriber) push(c Change) {
	s.mu.Lock()
	if !s.has {
		s.pending = Change{Version: c.Version, All: c.All, Packages: slices.Clone(c.Packages)}
		s.has = true
	} else {
		s.pending.Version = max(s.pending.Version, c.Version)
		s.pending.All = s.pending.All || c.All
		if !s.pending.All {
			for _, pkg := range c.Packages {
				if !slices.Contains(s.pending.Packages, pkg) {
					s.pending.Packages = append(s.pending.Packages, pkg)
				}
			}
		} else {
			s.pending.Packages = nil
		}
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) take() (Change, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return Change{}, false
	}
	c := s.pending
	s.pending = Change{}
	s.has = false
	return c, true
}

func (r *Registry) register() (int, *subscriber) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.nextSub++
	sub := newSubscriber()
	r.subs[r.nextSub] = sub
	return r.nextSub, sub
}

func (r *Registry) unregister(id int) {
	r.subsMu.Lock()
	delete(r.subs, id)
	r.subsMu.Unlock()
}

func (r *Registry) publish(c Change) {
	r.subsMu.Lock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.subsMu.Unlock()

	for _, s := range subs {
		s.push(c)
	}
}

// Subscribe streams committed changes until ctx is done. Changes that arrive
// while the reader is busy are merged into one.
func (r *Registry) Subscribe(ctx context.Context) <-chan Change {
	out := make(chan Change)
	subID, sub := r.register()

	go func() {
		defer close(out)
		defer r.unregister(subID)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
				c, ok := sub.take()
				if !ok {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Observe emits the current list for pkg immediately and again after every
// committed mutation that touches it, until ctx is done.
func (r *Registry) Observe(ctx context.Context, pkg string) <-chan []domain.BackupRecord {
	out := make(chan []domain.BackupRecord, 1)
	// Subscribe before reading so no mutation slips between the two.
	changes := r.Subscribe(ctx)
	out <- r.Get(pkg)

	go func() {
		defer close(out)
		for c := range changes {
			if !c.Affects(pkg) {
				continue
			}
			select {
			case out <- r.Get(pkg):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
