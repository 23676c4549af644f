// Package dispatcher turns schedule triggers into batches: it suppresses
// duplicate runs, selects packages, hands the work units to the batch
// coordinator and re-arms the schedule when the run ends.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/batch"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/id"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/selector"
	"github.com/neobackupapp/neobackup-server/internal/sse"
	"github.com/neobackupapp/neobackup-server/internal/workunit"
)

// storeTimeout bounds store calls made outside a request, such as re-arming
// after a batch completed.
const storeTimeout = 10 * time.Second

// Source identifies what caused a trigger.
type Source string

const (
	SourceAlarm     Source = "alarm"
	SourceCommand   Source = "command"
	SourceDuplicate Source = "duplicate" // fake schedule duplicates
)

// Outcome is the result of one trigger attempt.
type Outcome string

const (
	OutcomeRunning           Outcome = "running"
	OutcomeRejectedDuplicate Outcome = "rejected_duplicate"
	OutcomeNoWork            Outcome = "no_work"
	OutcomeFailed            Outcome = "failed"
)

// ScheduleStore is the persistence the dispatcher reads at trigger time.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error)
	ListSchedules(ctx context.Context) ([]*domain.Schedule, error)
	UpdateScheduleTimes(ctx context.Context, id int64, placed, toRun time.Time) error
	GetBlocklist(ctx context.Context, listID int64) ([]string, error)
	ListExtras(ctx context.Context) (map[string]domain.AppExtras, error)
}

// Inventory lists the installed packages.
type Inventory interface {
	Packages() []domain.Package
}

// Registry answers latest-backup lookups for the special filters.
type Registry interface {
	Latest(pkg string) (domain.BackupRecord, bool)
}

// Storage reports whether the backup location is usable.
type Storage interface {
	Check() error
}

// Emitter publishes lifecycle events.
type Emitter interface {
	Emit(sse.Event)
}

// Config holds dispatcher settings.
type Config struct {
	// FakeScheduleDups adds N extra trigger events per trigger. Every extra
	// event goes through duplicate suppression like a real one.
	FakeScheduleDups    int
	FakeScheduleMinutes int
	OldBackupDays       int
	// Location is the zone schedule times are read in. Nil means time.Local.
	Location *time.Location
}

// Result describes one trigger attempt.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	RunID    string  `json:"run_id"`
	Batch    string  `json:"batch,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	Packages int     `json:"packages"`
}

// Dispatcher is the schedule state machine.
type Dispatcher struct {
	store     ScheduleStore
	inventory Inventory
	registry  Registry
	storage   Storage
	batches   *batch.Coordinator
	events    Emitter
	logger    *slog.Logger
	cfg       Config

	runs   *RunState
	wake   *WakeLock
	alarms *AlarmManager
	now    func() time.Time

	// ctx is the parent of alarm-triggered runs.
	ctx    context.Context
	cancel context.CancelFunc

	shutdownOnce sync.Once
}

// New creates a Dispatcher and subscribes it to unit failures of the
// coordinator. events may be nil.
func New(
	store ScheduleStore,
	inventory Inventory,
	registry Registry,
	storage Storage,
	batches *batch.Coordinator,
	events Emitter,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:     store,
		inventory: inventory,
		registry:  registry,
		storage:   storage,
		batches:   batches,
		events:    events,
		logger:    logger,
		cfg:       cfg,
		runs:      NewRunState(),
		wake:      NewWakeLock(logger, nil, nil),
		alarms:    NewAlarmManager(logger),
		now:       func() time.Time { return time.Now().In(loc) },
		ctx:       ctx,
		cancel:    cancel,
	}

	batches.OnUnitError(func(batchName string, scheduleID int64, r domain.UnitResult) {
		d.emit(sse.NewUnitErrorEvent(scheduleID, r, batchName))
	})
	batches.OnComplete(func(r domain.BatchResult) {
		d.emit(sse.NewBatchCompletedEvent(r))
	})

	return d
}

// Trigger fires a schedule. With fake duplicates enabled the extra events
// follow immediately; the returned Result is the one of the real trigger.
func (d *Dispatcher) Trigger(ctx context.Context, scheduleID int64, source Source) (Result, error) {
	res, err := d.attempt(ctx, scheduleID, source)

	for i := range d.cfg.FakeScheduleDups {
		dup, dupErr := d.attempt(ctx, scheduleID, SourceDuplicate)
		d.logger.Debug("fake duplicate trigger",
			slog.Int64("schedule_id", scheduleID),
			slog.Int("n", i+1),
			slog.String("outcome", string(dup.Outcome)),
			slog.Any("error", dupErr))
	}

	return res, err
}

// attempt runs one trigger through the state machine.
func (d *Dispatcher) attempt(ctx context.Context, scheduleID int64, source Source) (res Result, err error) {
	runID := id.NewRunID()
	res.RunID = runID

	sched, err := d.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}

	log := logger.ForSchedule(d.logger, sched.ID, sched.Name).With(
		slog.String("run_id", runID),
		slog.String("source", string(source)),
	)
	data := sse.RunEventData{
		RunID:        runID,
		ScheduleID:   sched.ID,
		ScheduleName: sched.Name,
		Source:       string(source),
	}

	now := d.now()
	run := Run{ScheduleID: sched.ID, RunID: runID, Source: source, StartedAt: now}
	if !d.runs.TryBegin(run) {
		current, _ := d.runs.Get(sched.ID)
		log.Info("schedule already running, trigger ignored",
			slog.String("running_run_id", current.RunID),
			slog.String("batch", current.Batch))
		data.Batch = current.Batch
		data.Detail = "already running"
		d.emit(sse.NewRunDuplicateEvent(data))
		res.Outcome = OutcomeRejectedDuplicate
		res.Detail = data.Detail
		return res, nil
	}

	release := d.wake.Acquire()
	handedOff := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("schedule run panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			data.Detail = fmt.Sprintf("unexpected error: %v", r)
			d.emit(sse.NewRunFailedEvent(data))
			res = Result{Outcome: OutcomeFailed, RunID: runID, Detail: data.Detail}
			err = domainerrors.Internalf("schedule %d run failed: %v", sched.ID, r)
			handedOff = false
		}
		if !handedOff {
			d.finish(run, release, nil, res.Outcome, log)
		}
	}()

	log.Info("schedule run started")
	d.emit(sse.NewRunBeginEvent(data))

	if source == SourceAlarm {
		sched.TimePlaced = now
		if err := d.store.UpdateScheduleTimes(ctx, sched.ID, now, sched.TimeToRun); err != nil {
			log.Warn("failed to update schedule anchor", slog.String("error", err.Error()))
		}
	}

	selected, err := d.selectPackages(ctx, sched, now)
	switch {
	case errors.Is(err, domainerrors.ErrStorageUnavailable):
		log.Warn("backup location not accessible", slog.String("error", err.Error()))
		selected = nil
	case err != nil:
		log.Error("package selection failed", slog.String("error", err.Error()))
		data.Detail = err.Error()
		d.emit(sse.NewRunFailedEvent(data))
		res.Outcome = OutcomeFailed
		res.Detail = data.Detail
		return res, err
	}

	if len(selected) == 0 {
		data.Detail = "schedule failed: empty filtered list"
		if err != nil {
			data.Detail = "schedule failed: backup location not accessible"
		}
		log.Warn("no packages selected")
		d.emit(sse.NewRunEmptySelectionEvent(data))
		res.Outcome = OutcomeNoWork
		res.Detail = data.Detail
		return res, nil
	}

	batchName := domain.BatchName(sched.Name, now)
	units, err := workunit.Build(selected, sched, batchName, id.NextNotificationID())
	if err != nil {
		log.Error("failed to build work units", slog.String("error", err.Error()))
		data.Detail = err.Error()
		d.emit(sse.NewRunFailedEvent(data))
		res.Outcome = OutcomeFailed
		res.Detail = data.Detail
		return res, err
	}

	run.Batch = batchName
	d.runs.SetBatch(sched.ID, runID, batchName)
	log.Info("packages selected",
		slog.String("batch", batchName),
		slog.Int("packages", len(selected)))

	// The coordinator may complete synchronously, so ownership of cleanup
	// passes to onDone before Run is called.
	handedOff = true
	if _, err := d.batches.Run(ctx, batchName, sched.ID, units, func(r domain.BatchResult) {
		d.finish(run, release, &r, OutcomeRunning, log)
	}); err != nil {
		handedOff = false
		log.Error("failed to start batch", slog.String("error", err.Error()))
		data.Batch = batchName
		data.Detail = err.Error()
		d.emit(sse.NewRunFailedEvent(data))
		res.Outcome = OutcomeFailed
		res.Detail = data.Detail
		return res, err
	}

	res.Outcome = OutcomeRunning
	res.Batch = batchName
	res.Packages = len(units)
	return res, nil
}

// selectPackages gathers the selector inputs. A missing backup location is
// reported as ErrStorageUnavailable.
func (d *Dispatcher) selectPackages(ctx context.Context, s *domain.Schedule, now time.Time) ([]string, error) {
	if err := d.storage.Check(); err != nil {
		return nil, domainerrors.StorageUnavailable(err, "backup location not accessible")
	}

	extras, err := d.store.ListExtras(ctx)
	if err != nil {
		return nil, fmt.Errorf("load extras: %w", err)
	}
	global, err := d.store.GetBlocklist(ctx, domain.GlobalBlocklistID)
	if err != nil {
		return nil, fmt.Errorf("load global blocklist: %w", err)
	}

	criteria := selector.CriteriaFor(s, now, d.cfg.OldBackupDays, d.registry.Latest)
	return selector.Select(d.inventory.Packages(), s, extras, global, selector.DefaultCategoryFilter(criteria)), nil
}

// finish is the single cleanup path of a run. It clears the run state,
// drops the wake lock reference and re-arms the schedule. Calling it twice
// for the same run is a no-op.
func (d *Dispatcher) finish(run Run, release func(), result *domain.BatchResult, outcome Outcome, log *slog.Logger) {
	if !d.runs.End(run.ScheduleID, run.RunID) {
		return
	}
	release()

	data := sse.RunEventData{
		RunID:      run.RunID,
		ScheduleID: run.ScheduleID,
		Source:     string(run.Source),
		Batch:      run.Batch,
		Detail:     string(outcome),
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// Manual runs keep the interval anchor of the schedule.
	next, err := d.rearm(ctx, run.ScheduleID, run.Source != SourceCommand, true)
	switch {
	case errors.Is(err, domainerrors.ErrNotFound):
		log.Info("schedule deleted during run, not re-armed")
	case err != nil:
		log.Warn("failed to re-arm schedule", slog.String("error", err.Error()))
	case !next.IsZero():
		data.NextRun = &next
	}

	attrs := []any{
		slog.String("outcome", string(outcome)),
		slog.Duration("duration", d.now().Sub(run.StartedAt)),
	}
	if result != nil {
		data.Packages = result.Finished
		data.Detail = summarize(*result)
		attrs = append(attrs,
			slog.Bool("success", result.Success),
			slog.Int("finished", result.Finished),
			slog.Bool("cancelled", result.Cancelled))
		if result.Errors != "" {
			attrs = append(attrs, slog.String("errors", strings.TrimSpace(result.Errors)))
		}
	}
	if data.NextRun != nil {
		attrs = append(attrs, slog.Time("next_run", *data.NextRun))
	}
	log.Info("schedule run finished", attrs...)

	if s, err := d.store.GetSchedule(ctx, run.ScheduleID); err == nil {
		data.ScheduleName = s.Name
	}
	d.emit(sse.NewRunEndEvent(data))
}

func summarize(r domain.BatchResult) string {
	switch {
	case r.Cancelled:
		return fmt.Sprintf("cancelled after %d of %d packages", r.Finished, r.Queued)
	case r.Success:
		return fmt.Sprintf("%d packages backed up", r.Finished)
	default:
		return "finished with errors:\n" + r.Errors
	}
}

// Rearm computes the next trigger of a schedule, stores it and arms the
// alarm. reschedule moves the interval anchor to now. Disabled or deleted
// schedules are disarmed and yield the zero time.
func (d *Dispatcher) Rearm(ctx context.Context, scheduleID int64, reschedule bool) (time.Time, error) {
	return d.rearm(ctx, scheduleID, reschedule, false)
}

// rearm backs Rearm. afterRun is set when a run of the schedule just ended;
// the next trigger is then kept at least a minute away so a short run
// cannot fire the same slot twice.
func (d *Dispatcher) rearm(ctx context.Context, scheduleID int64, reschedule, afterRun bool) (time.Time, error) {
	s, err := d.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			d.alarms.Cancel(scheduleID)
		}
		return time.Time{}, err
	}
	if !s.Enabled {
		if d.alarms.Cancel(scheduleID) {
			d.logger.Info("schedule disabled, alarm removed", slog.Int64("schedule_id", scheduleID))
		}
		return time.Time{}, nil
	}

	now := d.now()
	placed := s.TimePlaced
	if reschedule || placed.IsZero() {
		placed = now
		s.TimePlaced = now
	}
	next := NextTrigger(s, now, d.cfg.FakeScheduleMinutes)
	if afterRun && next.Sub(now) < time.Minute {
		next = now.Add(time.Minute)
	}

	if err := d.store.UpdateScheduleTimes(ctx, scheduleID, placed, next); err != nil {
		return time.Time{}, fmt.Errorf("store next trigger: %w", err)
	}

	d.alarms.Arm(scheduleID, next, func() { d.onAlarm(scheduleID) })
	logger.ForSchedule(d.logger, scheduleID, s.Name).Debug("schedule armed", slog.Time("next_run", next))
	return next, nil
}

func (d *Dispatcher) onAlarm(scheduleID int64) {
	if d.ctx.Err() != nil {
		return
	}
	res, err := d.Trigger(d.ctx, scheduleID, SourceAlarm)
	if err == nil {
		return
	}
	d.logger.Error("scheduled trigger failed",
		slog.Int64("schedule_id", scheduleID),
		slog.String("outcome", string(res.Outcome)),
		slog.String("error", err.Error()))

	// A failure before the run began leaves nothing that would re-arm.
	if _, pending := d.alarms.Pending(scheduleID); !pending && !d.runs.Running(scheduleID) {
		ctx, cancel := context.WithTimeout(d.ctx, storeTimeout)
		defer cancel()
		if _, err := d.Rearm(ctx, scheduleID, true); err != nil {
			d.logger.Warn("failed to re-arm schedule", slog.Int64("schedule_id", scheduleID), slog.String("error", err.Error()))
		}
	}
}

// ScheduleAll arms every enabled schedule and disarms the others.
func (d *Dispatcher) ScheduleAll(ctx context.Context) error {
	schedules, err := d.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}

	var errs []error
	armed := 0
	for _, s := range schedules {
		if !s.Enabled {
			d.alarms.Cancel(s.ID)
			continue
		}
		if _, err := d.Rearm(ctx, s.ID, false); err != nil {
			errs = append(errs, fmt.Errorf("schedule %d: %w", s.ID, err))
			continue
		}
		armed++
	}

	d.logger.Info("schedules armed",
		slog.Int("armed", armed),
		slog.Int("total", len(schedules)))
	return errors.Join(errs...)
}

// Disarm removes the pending alarm of a schedule. A running batch is not
// affected.
func (d *Dispatcher) Disarm(scheduleID int64) bool {
	ok := d.alarms.Cancel(scheduleID)
	if ok {
		d.logger.Info("schedule alarm removed", slog.Int64("schedule_id", scheduleID))
	}
	return ok
}

// Guard runs fn at the dispatcher boundary: a panic is logged, reported as
// a run.failed event and returned as an internal error.
func (d *Dispatcher) Guard(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recovered from panic",
				slog.String("operation", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			d.emit(sse.NewRunFailedEvent(sse.RunEventData{
				Source: name,
				Detail: fmt.Sprintf("unexpected error: %v", r),
			}))
			err = domainerrors.Internalf("%s failed: %v", name, r)
		}
	}()
	return fn(ctx)
}

// Running returns the active runs.
func (d *Dispatcher) Running() []Run {
	return d.runs.Snapshot()
}

// RunOf returns the active run of a schedule.
func (d *Dispatcher) RunOf(scheduleID int64) (Run, bool) {
	return d.runs.Get(scheduleID)
}

// NextAlarm returns the armed trigger time of a schedule.
func (d *Dispatcher) NextAlarm(scheduleID int64) (time.Time, bool) {
	return d.alarms.Pending(scheduleID)
}

// Alarms returns all pending alarms.
func (d *Dispatcher) Alarms() []Alarm {
	return d.alarms.List()
}

// Preview computes the next trigger without arming anything.
func (d *Dispatcher) Preview(s *domain.Schedule) time.Time {
	return NextTrigger(s, d.now(), d.cfg.FakeScheduleMinutes)
}

// ActiveBatches returns progress snapshots of the batches still running.
func (d *Dispatcher) ActiveBatches() []domain.BatchResult {
	return d.batches.Active()
}

// WakeLockHeld reports whether any run keeps the lock.
func (d *Dispatcher) WakeLockHeld() bool {
	return d.wake.Held()
}

// Shutdown removes all alarms. Running batches are left to the worker pool.
func (d *Dispatcher) Shutdown() error {
	d.shutdownOnce.Do(func() {
		d.cancel()
		n := d.alarms.CancelAll()
		d.logger.Info("dispatcher stopped", slog.Int("alarms_cancelled", n))
	})
	return nil
}

func (d *Dispatcher) emit(e sse.Event) {
	if d.events != nil {
		d.events.Emit(e)
	}
}
