package dispatcher

import (
	"cmp"
	"slices"
	"time"
)

// Run describes a schedule run that is currently active.
type Run struct {
	StartedAt  time.Time `json:"started_at"`
	RunID      string    `json:"run_id"`
	Source     Source    `json:"source"`
	Batch      string    `json:"batch,omitempty"`
	ScheduleID int64     `json:"schedule_id"`
}

// RunState tracks which schedules are running. An entry exists only while a
// run is active; absence means idle.
type RunState struct {
	runs *SyncMap[int64, Run]
}

// NewRunState creates an empty RunState.
func NewRunState() *RunState {
	return &RunState{runs: NewSyncMap[int64, Run]()}
}

// TryBegin marks the schedule as running. It is a single test-and-set: of any
// number of concurrent callers for the same schedule exactly one wins.
func (s *RunState) TryBegin(r Run) bool {
	_, loaded := s.runs.LoadOrStore(r.ScheduleID, r)
	return !loaded
}

// SetBatch records the batch name of an active run.
func (s *RunState) SetBatch(scheduleID int64, runID, batch string) bool {
	ok := false
	s.runs.Update(scheduleID, func(r Run) Run {
		if r.RunID == runID {
			r.Batch = batch
			ok = true
		}
		return r
	})
	return ok
}

// End clears the entry of runID. It returns false if that run already ended,
// so cleanup paths may call it more than once.
func (s *RunState) End(scheduleID int64, runID string) bool {
	return s.runs.DeleteIf(scheduleID, func(r Run) bool { return r.RunID == runID })
}

// Running reports whether a run of the schedule is active.
func (s *RunState) Running(scheduleID int64) bool {
	_, ok := s.runs.Load(scheduleID)
	return ok
}

// Get returns the active run of a schedule.
func (s *RunState) Get(scheduleID int64) (Run, bool) {
	return s.runs.Load(scheduleID)
}

// Snapshot returns all active runs ordered by schedule id.
func (s *RunState) Snapshot() []Run {
	out := s.runs.Values()
	slices.SortFunc(out, func(a, b Run) int { return cmp.Compare(a.ScheduleID, b.ScheduleID) })
	return out
}
