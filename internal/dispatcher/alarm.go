package dispatcher

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Alarm is a pending trigger.
type Alarm struct {
	At         time.Time `json:"at"`
	ScheduleID int64     `json:"schedule_id"`
}

// AlarmManager keeps at most one pending timer per schedule.
type AlarmManager struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	alarms map[int64]*alarm
	seq    uint64
}

type alarm struct {
	at    time.Time
	timer *time.Timer
	seq   uint64
}

// NewAlarmManager creates an AlarmManager.
func NewAlarmManager(logger *slog.Logger) *AlarmManager {
	return &AlarmManager{
		logger: logger,
		now:    time.Now,
		alarms: make(map[int64]*alarm),
	}
}

// Arm sets the alarm of a schedule, replacing any pending one. fn runs on its
// own goroutine at (or right after) at; a time in the past fires immediately.
func (m *AlarmManager) Arm(scheduleID int64, at time.Time, fn func()) {
	delay := max(at.Sub(m.now()), 0)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.alarms[scheduleID]; ok {
		old.timer.Stop()
	}
	m.seq++
	a := &alarm{at: at, seq: m.seq}
	a.timer = time.AfterFunc(delay, func() {
		// A replaced or cancelled alarm whose timer already fired must not run.
		m.mu.Lock()
		cur, ok := m.alarms[scheduleID]
		if !ok || cur.seq != a.seq {
			m.mu.Unlock()
			return
		}
		delete(m.alarms, scheduleID)
		m.mu.Unlock()

		m.logger.Debug("alarm fired",
			slog.Int64("schedule_id", scheduleID),
			slog.Time("at", at))
		fn()
	})
	m.alarms[scheduleID] = a
}

// Cancel removes the pending alarm of a schedule.
func (m *AlarmManager) Cancel(scheduleID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alarms[scheduleID]
	if !ok {
		return false
	}
	a.timer.Stop()
	delete(m.alarms, scheduleID)
	return true
}

// Pending returns the armed time of a schedule.
func (m *AlarmManager) Pending(scheduleID int64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alarms[scheduleID]
	if !ok {
		return time.Time{}, false
	}
	return a.at, true
}

// List returns all pending alarms, soonest first.
func (m *AlarmManager) List() []Alarm {
	m.mu.Lock()
	out := make([]Alarm, 0, len(m.alarms))
	for id, a := range m.alarms {
		out = append(out, Alarm{ScheduleID: id, At: a.at})
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Alarm) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return cmp.Compare(a.ScheduleID, b.ScheduleID)
	})
	return out
}

// CancelAll removes every pending alarm and returns how many there were.
func (m *AlarmManager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.alarms)
	for id, a := range m.alarms {
		a.timer.Stop()
		delete(m.alarms, id)
	}
	return n
}
