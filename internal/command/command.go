// Package command is the external trigger surface of the scheduler: run a
// schedule now, cancel a batch, cancel a schedule, reschedule, and a debug
// crash.
package command

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// Name identifies a command.
type Name string

// Commands understood by Execute.
const (
	RunSchedule    Name = "RUN_SCHEDULE"
	Cancel         Name = "CANCEL"
	CancelSchedule Name = "CANCEL_SCHEDULE"
	Reschedule     Name = "RESCHEDULE"
	Crash          Name = "CRASH"
)

// rescheduleDelay is the default new time of a RESCHEDULE without a time.
const rescheduleDelay = 2 * time.Minute

// Command is one request. Only the fields of the named command are read.
type Command struct {
	Name         Name   `json:"name"`
	ScheduleName string `json:"schedule_name,omitempty"`
	ScheduleID   int64  `json:"schedule_id,omitempty"`
	BatchName    string `json:"batch_name,omitempty"`
	Periodic     bool   `json:"periodic,omitempty"`
	Time         string `json:"time,omitempty"`
}

// Reply reports what a command did.
type Reply struct {
	Command      Name               `json:"command"`
	Detail       string             `json:"detail"`
	Trigger      *dispatcher.Result `json:"trigger,omitempty"`
	NextRun      time.Time          `json:"next_run,omitzero"`
	AlarmRemoved bool               `json:"alarm_removed,omitempty"`
	Dropped      int                `json:"dropped,omitempty"`
}

// Schedules is the schedule persistence used by commands.
type Schedules interface {
	GetScheduleByName(ctx context.Context, name string) (*domain.Schedule, error)
	UpdateSchedule(ctx context.Context, s *domain.Schedule) error
}

// Dispatcher is the part of the schedule dispatcher commands drive.
type Dispatcher interface {
	Trigger(ctx context.Context, scheduleID int64, source dispatcher.Source) (dispatcher.Result, error)
	Rearm(ctx context.Context, scheduleID int64, reschedule bool) (time.Time, error)
	Disarm(scheduleID int64) bool
	RunOf(scheduleID int64) (dispatcher.Run, bool)
	Guard(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Batches cancels running batches.
type Batches interface {
	Cancel(name string) (int, error)
}

// Handler executes commands.
type Handler struct {
	schedules  Schedules
	dispatcher Dispatcher
	batches    Batches
	debug      bool
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewHandler creates a command handler. debug enables CRASH. A nil location
// means time.Local.
func NewHandler(schedules Schedules, d Dispatcher, batches Batches, debug bool, location *time.Location, logger *slog.Logger) *Handler {
	if location == nil {
		location = time.Local
	}
	return &Handler{
		schedules:  schedules,
		dispatcher: d,
		batches:    batches,
		debug:      debug,
		location:   location,
		now:        time.Now,
		logger:     logger,
	}
}

// Execute dispatches by command name.
func (h *Handler) Execute(ctx context.Context, c Command) (*Reply, error) {
	h.logger.Info("command received",
		slog.String("command", string(c.Name)),
		slog.String("schedule_name", c.ScheduleName),
		slog.Int64("schedule_id", c.ScheduleID),
		slog.String("batch", c.BatchName))

	switch Name(strings.ToUpper(string(c.Name))) {
	case RunSchedule:
		return h.RunSchedule(ctx, c.ScheduleName)
	case Cancel:
		return h.Cancel(ctx, c.BatchName)
	case CancelSchedule:
		return h.CancelSchedule(ctx, c.ScheduleID, c.Periodic)
	case Reschedule:
		return h.Reschedule(ctx, c.ScheduleName, c.Time)
	case Crash:
		return h.Crash(ctx)
	default:
		h.logger.Warn("unknown command", slog.String("command", string(c.Name)))
		return nil, domainerrors.Validationf("unknown command %q", c.Name)
	}
}

// RunSchedule triggers a schedule immediately, ignoring its time of day.
func (h *Handler) RunSchedule(ctx context.Context, name string) (*Reply, error) {
	if name == "" {
		return nil, domainerrors.Validation("schedule name is required")
	}
	s, err := h.schedules.GetScheduleByName(ctx, name)
	if err != nil {
		return nil, err
	}

	res, err := h.dispatcher.Trigger(ctx, s.ID, dispatcher.SourceCommand)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Command: RunSchedule,
		Detail:  describe(s.Name, res),
		Trigger: &res,
	}, nil
}

func describe(name string, res dispatcher.Result) string {
	switch res.Outcome {
	case dispatcher.OutcomeRunning:
		return "started " + res.Batch
	case dispatcher.OutcomeRejectedDuplicate:
		return name + " is already running"
	case dispatcher.OutcomeNoWork:
		return res.Detail
	default:
		return "run of " + name + " failed"
	}
}

// Cancel stops a running batch. Units already executing finish.
func (h *Handler) Cancel(_ context.Context, batchName string) (*Reply, error) {
	if batchName == "" {
		return nil, domainerrors.Validation("batch name is required")
	}
	dropped, err := h.batches.Cancel(batchName)
	if err != nil {
		return nil, err
	}
	return &Reply{
		Command: Cancel,
		Detail:  "cancelled " + batchName,
		Dropped: dropped,
	}, nil
}

// CancelSchedule removes the pending alarm of a schedule. With periodic
// false the schedule's current one-shot run is cancelled as well.
func (h *Handler) CancelSchedule(_ context.Context, scheduleID int64, periodic bool) (*Reply, error) {
	if scheduleID <= 0 {
		return nil, domainerrors.Validationf("invalid schedule id %d", scheduleID)
	}

	reply := &Reply{
		Command:      CancelSchedule,
		AlarmRemoved: h.dispatcher.Disarm(scheduleID),
		Detail:       "no pending alarm",
	}
	if reply.AlarmRemoved {
		reply.Detail = "alarm removed"
	}

	if periodic {
		return reply, nil
	}
	run, ok := h.dispatcher.RunOf(scheduleID)
	if !ok || run.Batch == "" {
		return reply, nil
	}
	dropped, err := h.batches.Cancel(run.Batch)
	if errors.Is(err, domainerrors.ErrNotFound) {
		// Completed between the lookup and the cancel.
		return reply, nil
	}
	if err != nil {
		return nil, err
	}
	reply.Dropped = dropped
	reply.Detail += ", cancelled " + run.Batch
	return reply, nil
}

// Reschedule moves a schedule to a new time of day and re-arms it. An empty
// newTime means two minutes from now.
func (h *Handler) Reschedule(ctx context.Context, name, newTime string) (*Reply, error) {
	if name == "" {
		return nil, domainerrors.Validation("schedule name is required")
	}
	setTime := newTime
	if setTime == "" {
		setTime = h.now().In(h.location).Add(rescheduleDelay).Format("15:04")
	}
	hour, minute, err := domain.ParseTimeOfDay(setTime)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	s, err := h.schedules.GetScheduleByName(ctx, name)
	if err != nil {
		return nil, err
	}
	updated := s.WithTime(hour, minute)
	if err := h.schedules.UpdateSchedule(ctx, updated); err != nil {
		return nil, err
	}

	next, err := h.dispatcher.Rearm(ctx, updated.ID, true)
	if err != nil {
		return nil, err
	}

	h.logger.Info("schedule rescheduled",
		slog.Int64("schedule_id", updated.ID),
		slog.String("schedule_name", updated.Name),
		slog.String("requested", newTime),
		slog.String("time", updated.TimeOfDay()),
		slog.Time("next_run", next))

	return &Reply{
		Command: Reschedule,
		Detail:  name + " -> " + updated.TimeOfDay(),
		NextRun: next,
	}, nil
}

// Crash raises a panic inside the dispatcher boundary. It is only available
// with debug commands enabled; the panic is recovered and reported.
func (h *Handler) Crash(ctx context.Context) (*Reply, error) {
	if !h.debug {
		return nil, domainerrors.Forbidden("debug commands are disabled")
	}
	err := h.dispatcher.Guard(ctx, "crash", func(context.Context) error {
		panic("this is a crash via command")
	})
	detail := "no crash"
	if err != nil {
		detail = "recovered: " + err.Error()
	}
	return &Reply{Command: Crash, Detail: detail}, nil
}
