package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/logger"
)

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func rec(pkg string, hoursAfter int) domain.BackupRecord {
	return domain.BackupRecord{
		PackageName: pkg,
		BackupDate:  base.Add(time.Duration(hoursAfter) * time.Hour),
		HasAPK:      true,
	}
}

func newRegistry() *Registry {
	return New(logger.Discard())
}

func TestGet_AbsentIsEmptyNotNil(t *testing.T) {
	r := newRegistry()
	got := r.Get("com.missing")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReplace_SortsAndDedupes(t *testing.T) {
	r := newRegistry()
	dup := rec("com.a", 1)
	dup.Size = 42

	r.Replace("com.a", []domain.BackupRecord{rec("com.a", 0), rec("com.a", 1), dup})

	got := r.Get("com.a")
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(time.Hour), got[0].BackupDate)
	assert.Equal(t, int64(42), got[0].Size, "last record with a date wins")
	assert.Equal(t, uint64(1), r.Version())
}

func TestReplace_EmptyRemovesKey(t *testing.T) {
	r := newRegistry()
	r.Replace("com.a", []domain.BackupRecord{rec("com.a", 0)})
	r.Replace("com.a", nil)

	assert.False(t, r.Has("com.a"))
	assert.Empty(t, r.Packages())
	assert.Equal(t, uint64(2), r.Version())
}

func TestRemoveThenGet(t *testing.T) {
	r := newRegistry()
	r.Replace("com.a", []domain.BackupRecord{rec("com.a", 0), rec("com.a", 1)})

	r.Remove("com.a")

	assert.Empty(t, r.Get("com.a"))
}

func TestRemoveMany(t *testing.T) {
	r := newRegistry()
	r.ReplaceAll([]domain.BackupRecord{rec("com.a", 0), rec("com.b", 0), rec("com.c", 0)})

	r.RemoveMany([]string{"com.a", "com.c", "com.unknown"})

	assert.Equal(t, []string{"com.b"}, r.Packages())
}

func TestReplaceAll_Regroups(t *testing.T) {
	r := newRegistry()
	r.Replace("com.old", []domain.BackupRecord{rec("com.old", 0)})

	r.ReplaceAll([]domain.BackupRecord{rec("com.a", 0), rec("com.b", 3), rec("com.a", 2)})

	assert.Equal(t, []string{"com.a", "com.b"}, r.Packages())
	assert.Len(t, r.Get("com.a"), 2)
	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.List(), 3)
}

func TestPutAndTake(t *testing.T) {
	r := newRegistry()
	r.Put(rec("com.a", 0))
	r.Put(rec("com.a", 5))

	latest, ok := r.Latest("com.a")
	require.True(t, ok)
	assert.Equal(t, base.Add(5*time.Hour), latest.BackupDate)

	taken, ok := r.Take("com.a", base.Add(5*time.Hour))
	require.True(t, ok)
	assert.Equal(t, latest, taken)
	version := r.Version()
	_, ok = r.Take("com.a", base.Add(5*time.Hour))
	assert.False(t, ok)
	assert.Equal(t, version, r.Version(), "a miss commits nothing")
	assert.Len(t, r.Get("com.a"), 1)

	_, ok = r.Take("com.a", base)
	assert.True(t, ok)
	assert.False(t, r.Has("com.a"))
}

func TestUpdate_SeesLatestAndCommits(t *testing.T) {
	r := newRegistry()
	r.Put(rec("com.a", 0))
	r.Put(rec("com.a", 1))

	ok := r.Update("com.a", func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
		require.Len(t, list, 2)
		assert.Equal(t, base.Add(time.Hour), list[0].BackupDate)
		return list[:1], true
	})

	assert.True(t, ok)
	got := r.Get("com.a")
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(time.Hour), got[0].BackupDate)
	assert.Equal(t, uint64(3), r.Version())
}

func TestUpdate_AbortLeavesVersion(t *testing.T) {
	r := newRegistry()
	r.Put(rec("com.a", 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := r.Subscribe(ctx)

	ok := r.Update("com.a", func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
		return nil, false
	})

	assert.False(t, ok)
	assert.Equal(t, uint64(1), r.Version())
	assert.Len(t, r.Get("com.a"), 1)
	select {
	case c := <-changes:
		t.Fatalf("unexpected notification %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdate_EmptyRemovesKey(t *testing.T) {
	r := newRegistry()
	r.Put(rec("com.a", 0))

	r.Update("com.a", func([]domain.BackupRecord) ([]domain.BackupRecord, bool) {
		return nil, true
	})
	assert.False(t, r.Has("com.a"))
}

func TestUpdate_ConcurrentPutsAreKept(t *testing.T) {
	r := newRegistry()
	const n = 50

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range n {
			r.Put(rec("com.a", i))
		}
	}()
	go func() {
		defer wg.Done()
		for range n {
			// drop nothing, only rewrite the list
			r.Update("com.a", func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
				for i := range list {
					list[i].Size++
				}
				return list, true
			})
		}
	}()
	wg.Wait()

	assert.Len(t, r.Get("com.a"), n)
}

func TestGetAll_IsACopy(t *testing.T) {
	r := newRegistry()
	r.Replace("com.a", []domain.BackupRecord{rec("com.a", 0)})

	all := r.GetAll()
	all["com.a"][0].Size = 999
	delete(all, "com.a")

	got := r.Get("com.a")
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Size)
}

func TestObserve_EmitsCurrentThenChanges(t *testing.T) {
	r := newRegistry()
	r.Replace("com.a", []domain.BackupRecord{rec("com.a", 0)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := r.Observe(ctx, "com.a")

	first := <-ch
	assert.Len(t, first, 1)

	r.Replace("com.b", []domain.BackupRecord{rec("com.b", 0)})
	r.Put(rec("com.a", 1))

	select {
	case next := <-ch:
		assert.Len(t, next, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification for com.a")
	}

	cancel()
	for range ch {
	}
}

func TestSubscribe_CoalescesWithoutLosingKeys(t *testing.T) {
	r := newRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := r.Subscribe(ctx)

	r.Put(rec("com.a", 0))
	r.Put(rec("com.b", 0))
	r.Put(rec("com.c", 0))

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case c := <-changes:
			for _, p := range c.Packages {
				seen[p] = true
			}
		case <-deadline:
			t.Fatalf("saw only %v", seen)
		}
	}
	assert.Equal(t, uint64(3), r.Version())
}

func TestSubscribe_ReplaceAllIsAll(t *testing.T) {
	r := newRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := r.Subscribe(ctx)
	r.ReplaceAll(nil)

	c := <-changes
	assert.True(t, c.All)
	assert.True(t, c.Affects("anything"))
}

// Readers must see each package's list either fully before or fully after a
// mutation. Every writer installs lists whose records all carry the same size
// tag, so a mixed list would mean a torn read.
func TestConcurrentSnapshotConsistency(t *testing.T) {
	r := newRegistry()
	pkgs := []string{"com.a", "com.b", "com.c"}

	listFor := func(pkg string, tag int64) []domain.BackupRecord {
		out := make([]domain.BackupRecord, 5)
		for i := range out {
			out[i] = rec(pkg, i)
			out[i].Size = tag
		}
		return out
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				pkg := pkgs[i%len(pkgs)]
				switch i % 3 {
				case 0:
					r.Replace(pkg, listFor(pkg, int64(w*1000+i)))
				case 1:
					r.Remove(pkg)
				case 2:
					all := append(listFor("com.a", int64(i)), listFor("com.b", int64(i))...)
					r.ReplaceAll(all)
				}
			}
		}(w)
	}

	var readers sync.WaitGroup
	errs := make(chan error, 8)
	for rd := 0; rd < 4; rd++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, pkg := range pkgs {
					list := r.Get(pkg)
					if len(list) != 0 && len(list) != 5 {
						errs <- fmt.Errorf("%s: partial list of %d", pkg, len(list))
						return
					}
					for _, b := range list {
						if b.Size != list[0].Size {
							errs <- fmt.Errorf("%s: mixed list", pkg)
							return
						}
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint64(1200), r.Version())
}
