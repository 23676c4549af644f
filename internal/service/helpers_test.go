package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

// fakeScheduler records arm and disarm calls.
type fakeScheduler struct {
	mu       sync.Mutex
	armed    map[int64]time.Time
	rearms   []rearmCall
	disarmed []int64
}

type rearmCall struct {
	id         int64
	reschedule bool
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{armed: map[int64]time.Time{}}
}

func (f *fakeScheduler) Rearm(_ context.Context, id int64, reschedule bool) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := testNow.Add(time.Hour)
	f.armed[id] = at
	f.rearms = append(f.rearms, rearmCall{id, reschedule})
	return at, nil
}

func (f *fakeScheduler) Disarm(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.armed[id]
	delete(f.armed, id)
	f.disarmed = append(f.disarmed, id)
	return ok
}

func (f *fakeScheduler) NextAlarm(id int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armed[id]
	return at, ok
}

func (f *fakeScheduler) Preview(s *domain.Schedule) time.Time {
	return dispatcher.NextTrigger(s, testNow, 0)
}

func newTestSQLite(t *testing.T) *sqlite.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestScheduleService(t *testing.T) (*ScheduleService, *sqlite.Store, *fakeScheduler) {
	t.Helper()
	db := newTestSQLite(t)
	sched := newFakeScheduler()
	return NewScheduleService(db, sched, validation.New(), logger.Discard()), db, sched
}

func testSchedule(name string, enabled bool) *domain.Schedule {
	s := domain.NewSchedule(name)
	s.Enabled = enabled
	s.TimeHour = 9
	return s
}
