// Package registry holds the authoritative in-memory view of backup metadata
// per package.
//
// Reads load an immutable snapshot and never block. Mutations are serialized
// by one registry-wide mutex, publish a new snapshot, bump the version, and
// only then notify observers.
package registry

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Change describes a committed mutation. All is set for wholesale
// replacements and for coalesced notifications that span many keys.
type Change struct {
	Version  uint64
	Packages []string
	All      bool
}

// Affects reports whether the change touches pkg.
func (c Change) Affects(pkg string) bool {
	return c.All || slices.Contains(c.Packages, pkg)
}

type snapshot struct {
	version uint64
	byPkg   map[string][]domain.BackupRecord
}

// Registry is a concurrent map from package name to its backup records.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	subsMu  sync.Mutex
	subs    map[int]*subscriber
	nextSub int

	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
	r.snap.Store(&snapshot{byPkg: map[string][]domain.BackupRecord{}})
	return r
}

// Version returns the number of committed mutations.
func (r *Registry) Version() uint64 {
	return r.snap.Load().version
}

// Get returns the records for pkg, newest first. Absent packages yield an empty list.
func (r *Registry) Get(pkg string) []domain.BackupRecord {
	list := r.snap.Load().byPkg[pkg]
	if list == nil {
		return []domain.BackupRecord{}
	}
	return slices.Clone(list)
}

// GetAll returns a copy of the whole map as of the call.
func (r *Registry) GetAll() map[string][]domain.BackupRecord {
	s := r.snap.Load()
	out := make(map[string][]domain.BackupRecord, len(s.byPkg))
	for pkg, list := range s.byPkg {
		out[pkg] = slices.Clone(list)
	}
	return out
}

// List returns every record across all packages.
func (r *Registry) List() []domain.BackupRecord {
	s := r.snap.Load()
	out := make([]domain.BackupRecord, 0, len(s.byPkg))
	for _, pkg := range slices.Sorted(maps.Keys(s.byPkg)) {
		out = append(out, s.byPkg[pkg]...)
	}
	return out
}

// Packages returns the sorted names of packages that have backups.
func (r *Registry) Packages() []string {
	return slices.Sorted(maps.Keys(r.snap.Load().byPkg))
}

// Has reports whether pkg has at least one backup.
func (r *Registry) Has(pkg string) bool {
	return len(r.snap.Load().byPkg[pkg]) > 0
}

// Count returns the total number of records.
func (r *Registry) Count() int {
	n := 0
	for _, list := range r.snap.Load().byPkg {
		n += len(list)
	}
	return n
}

// Latest returns the newest backup of pkg.
func (r *Registry) Latest(pkg string) (domain.BackupRecord, bool) {
	list := r.snap.Load().byPkg[pkg]
	if len(list) == 0 {
		return domain.BackupRecord{}, false
	}
	return list[0], true
}

// Replace atomically replaces the records of pkg. An empty list removes the key.
func (r *Registry) Replace(pkg string, records []domain.BackupRecord) {
	r.mutate(Change{Packages: []string{pkg}}, func(m map[string][]domain.BackupRecord) {
		if list := normalize(pkg, records); len(list) > 0 {
			m[pkg] = list
		} else {
			delete(m, pkg)
		}
	})
}

// ReplaceAll atomically clears the registry and regroups records by package.
func (r *Registry) ReplaceAll(records []domain.BackupRecord) {
	grouped := domain.GroupByPackage(records)
	r.mutateAll(func() map[string][]domain.BackupRecord {
		m := make(map[string][]domain.BackupRecord, len(grouped))
		for pkg, list := range grouped {
			if n := normalize(pkg, list); len(n) > 0 {
				m[pkg] = n
			}
		}
		return m
	})
	r.logger.Debug("registry replaced",
		slog.Int("packages", len(grouped)),
		slog.Int("records", len(records)),
		slog.Uint64("version", r.Version()),
	)
}

// Put inserts rec, replacing an existing record with the same backup date.
func (r *Registry) Put(rec domain.BackupRecord) {
	r.mutate(Change{Packages: []string{rec.PackageName}}, func(m map[string][]domain.BackupRecord) {
		list := slices.Clone(m[rec.PackageName])
		list = append(list, rec)
		m[rec.PackageName] = normalize(rec.PackageName, list)
	})
}

// Take atomically removes the record of pkg taken at date and returns it.
func (r *Registry) Take(pkg string, date time.Time) (domain.BackupRecord, bool) {
	var taken domain.BackupRecord
	ok := r.tryMutate(Change{Packages: []string{pkg}}, func(m map[string][]domain.BackupRecord) bool {
		list := m[pkg]
		i := slices.IndexFunc(list, func(b domain.BackupRecord) bool {
			return b.BackupDate.Equal(date)
		})
		if i < 0 {
			return false
		}
		taken = list[i]
		if len(list) == 1 {
			delete(m, pkg)
		} else {
			m[pkg] = slices.Delete(slices.Clone(list), i, i+1)
		}
		return true
	})
	return taken, ok
}

// Update atomically rewrites the records of pkg under the writer lock. fn
// receives a copy of the current list, newest first, and returns the new
// list. Returning false discards the result and commits nothing. fn must not
// call back into the registry. Update reports whether a change was committed.
func (r *Registry) Update(pkg string, fn func([]domain.BackupRecord) ([]domain.BackupRecord, bool)) bool {
	return r.tryMutate(Change{Packages: []string{pkg}}, func(m map[string][]domain.BackupRecord) bool {
		next, ok := fn(slices.Clone(m[pkg]))
		if !ok {
			return false
		}
		if list := normalize(pkg, next); len(list) > 0 {
			m[pkg] = list
		} else {
			delete(m, pkg)
		}
		return true
	})
}

// Remove atomically removes pkg.
func (r *Registry) Remove(pkg string) {
	r.RemoveMany([]string{pkg})
}

// RemoveMany atomically removes all named packages.
func (r *Registry) RemoveMany(pkgs []string) {
	if len(pkgs) == 0 {
		return
	}
	r.mutate(Change{Packages: slices.Clone(pkgs)}, func(m map[string][]domain.BackupRecord) {
		for _, pkg := range pkgs {
			delete(m, pkg)
		}
	})
}

// Clear removes everything.
func (r *Registry) Clear() {
	r.mutateAll(func() map[string][]domain.BackupRecord {
		return map[string][]domain.BackupRecord{}
	})
}

// mutate applies fn to a copy of the current map under the writer lock.
// Lists are never modified in place, so the copy is shallow.
func (r *Registry) mutate(change Change, fn func(map[string][]domain.BackupRecord)) {
	r.tryMutate(change, func(m map[string][]domain.BackupRecord) bool {
		fn(m)
		return true
	})
}

// tryMutate is mutate with an abort: when fn returns false the snapshot and
// version are left untouched and nobody is notified.
func (r *Registry) tryMutate(change Change, fn func(map[string][]domain.BackupRecord) bool) bool {
	r.mu.Lock()
	cur := r.snap.Load()
	next := maps.Clone(cur.byPkg)
	if !fn(next) {
		r.mu.Unlock()
		return false
	}
	s := &snapshot{version: cur.version + 1, byPkg: next}
	r.snap.Store(s)
	r.mu.Unlock()

	change.Version = s.version
	r.publish(change)
	return true
}

func (r *Registry) mutateAll(build func() map[string][]domain.BackupRecord) {
	r.mu.Lock()
	cur := r.snap.Load()
	s := &snapshot{version: cur.version + 1, byPkg: build()}
	r.snap.Store(s)
	r.mu.Unlock()

	r.publish(Change{Version: s.version, All: true})
}

// normalize forces the package name, keeps one record per backup date (last
// wins) and sorts newest first.
func normalize(pkg string, records []domain.BackupRecord) []domain.BackupRecord {
	if len(records) == 0 {
		return nil
	}
	byDate := make(map[int64]int, len(records))
	out := make([]domain.BackupRecord, 0, len(records))
	for _, rec := range records {
		rec.PackageName = pkg
		key := rec.BackupDate.UnixNano()
		if i, ok := byDate[key]; ok {
			out[i] = rec
			continue
		}
		byDate[key] = len(out)
		out = append(out, rec)
	}
	domain.SortNewestFirst(out)
	return out
}
