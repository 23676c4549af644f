package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/store"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
	"github.com/neobackupapp/neobackup-server/internal/util"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

// Scheduler arms and disarms schedule alarms.
type Scheduler interface {
	Rearm(ctx context.Context, scheduleID int64, reschedule bool) (time.Time, error)
	Disarm(scheduleID int64) bool
	NextAlarm(scheduleID int64) (time.Time, bool)
	Preview(s *domain.Schedule) time.Time
}

// NextRun describes when a schedule fires next.
type NextRun struct {
	ScheduleID int64     `json:"schedule_id"`
	Armed      bool      `json:"armed"`
	At         time.Time `json:"at,omitzero"`
	// Preview is the computed trigger, set even when no alarm is armed.
	Preview time.Time `json:"preview"`
}

// ScheduleService handles schedule CRUD and keeps alarms in sync with it.
type ScheduleService struct {
	store     *sqlite.Store
	scheduler Scheduler
	validator *validation.Validator
	logger    *slog.Logger
}

// NewScheduleService creates a new schedule service.
func NewScheduleService(store *sqlite.Store, scheduler Scheduler, validator *validation.Validator, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{
		store:     store,
		scheduler: scheduler,
		validator: validator,
		logger:    logger,
	}
}

// ListSchedules returns all schedules ordered by name.
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]*domain.Schedule, error) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	util.SortByLabel(schedules, func(s *domain.Schedule) string { return s.Name })
	return schedules, nil
}

// CountSchedules returns the number of schedules.
func (s *ScheduleService) CountSchedules(ctx context.Context) (int, error) {
	return s.store.CountSchedules(ctx)
}

// GetSchedule returns one schedule.
func (s *ScheduleService) GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error) {
	return s.store.GetSchedule(ctx, id)
}

// CreateSchedule validates and stores a new schedule. An empty name gets a
// random one. Enabled schedules are armed with the creation time as anchor.
func (s *ScheduleService) CreateSchedule(ctx context.Context, sched *domain.Schedule) (*domain.Schedule, error) {
	sched = sched.Copy()
	sched.ID = 0
	sched.TimePlaced = time.Time{}
	sched.TimeToRun = time.Time{}
	if strings.TrimSpace(sched.Name) == "" {
		sched.Name = domain.RandomScheduleName()
	}
	if err := s.prepare(sched); err != nil {
		return nil, err
	}

	if err := s.store.CreateSchedule(ctx, sched); err != nil {
		return nil, err
	}
	s.logger.Info("schedule created",
		slog.Int64("schedule_id", sched.ID),
		slog.String("schedule_name", sched.Name),
		slog.Bool("enabled", sched.Enabled))

	if sched.Enabled {
		if _, err := s.scheduler.Rearm(ctx, sched.ID, true); err != nil {
			return nil, fmt.Errorf("arm schedule: %w", err)
		}
	}
	return s.store.GetSchedule(ctx, sched.ID)
}

// UpdateSchedule replaces the user-editable fields of a schedule. A change of
// time or interval moves the anchor to now; disabling removes the alarm.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, sched *domain.Schedule) (*domain.Schedule, error) {
	existing, err := s.store.GetSchedule(ctx, sched.ID)
	if err != nil {
		return nil, err
	}

	updated := sched.Copy()
	updated.TimePlaced = existing.TimePlaced
	updated.TimeToRun = existing.TimeToRun
	if err := s.prepare(updated); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSchedule(ctx, updated); err != nil {
		return nil, err
	}

	timingChanged := existing.TimeHour != updated.TimeHour ||
		existing.TimeMinute != updated.TimeMinute ||
		existing.Interval != updated.Interval
	if err := s.sync(ctx, updated, timingChanged || !existing.Enabled); err != nil {
		return nil, err
	}

	s.logger.Info("schedule updated",
		slog.Int64("schedule_id", updated.ID),
		slog.String("schedule_name", updated.Name),
		slog.Bool("enabled", updated.Enabled),
		slog.Bool("timing_changed", timingChanged))
	return s.store.GetSchedule(ctx, updated.ID)
}

// SetEnabled toggles a schedule.
func (s *ScheduleService) SetEnabled(ctx context.Context, id int64, enabled bool) (*domain.Schedule, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Enabled == enabled {
		return sched, nil
	}
	sched.Enabled = enabled
	return s.UpdateSchedule(ctx, sched)
}

// DeleteSchedule removes a schedule and its alarm. A running batch of the
// schedule finishes but is not re-armed.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, id int64) error {
	s.scheduler.Disarm(id)
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.logger.Info("schedule deleted", slog.Int64("schedule_id", id))
	return nil
}

// NextRun reports the armed alarm of a schedule and the computed next trigger.
func (s *ScheduleService) NextRun(ctx context.Context, id int64) (*NextRun, error) {
	sched, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	next := &NextRun{ScheduleID: id, Preview: s.scheduler.Preview(sched)}
	if at, ok := s.scheduler.NextAlarm(id); ok {
		next.Armed = true
		next.At = at
	}
	return next, nil
}

// GetBlocklist returns a blocklist. domain.GlobalBlocklistID selects the
// global one.
func (s *ScheduleService) GetBlocklist(ctx context.Context, listID int64) ([]string, error) {
	if err := s.checkList(ctx, listID); err != nil {
		return nil, err
	}
	return s.store.GetBlocklist(ctx, listID)
}

// SetBlocklist replaces a blocklist.
func (s *ScheduleService) SetBlocklist(ctx context.Context, listID int64, pkgs []string) ([]string, error) {
	if err := s.checkList(ctx, listID); err != nil {
		return nil, err
	}
	if err := s.validator.Var("packages", pkgs, "dive,pkgname"); err != nil {
		return nil, err
	}
	if err := s.store.SetBlocklist(ctx, listID, pkgs); err != nil {
		return nil, fmt.Errorf("set blocklist: %w", err)
	}
	s.logger.Info("blocklist updated", slog.Int64("list_id", listID), slog.Int("packages", len(pkgs)))
	return s.store.GetBlocklist(ctx, listID)
}

func (s *ScheduleService) checkList(ctx context.Context, listID int64) error {
	if listID == domain.GlobalBlocklistID {
		return nil
	}
	_, err := s.store.GetSchedule(ctx, listID)
	return err
}

// prepare normalizes tags and validates a schedule before it is stored.
func (s *ScheduleService) prepare(sched *domain.Schedule) error {
	sched.Name = strings.TrimSpace(sched.Name)
	sched.TagsList = util.NormalizeTags(sched.TagsList)
	if err := s.validator.Validate(sched); err != nil {
		return err
	}
	if err := s.validator.Var("custom_list", sched.CustomList, "dive,pkgname"); err != nil {
		return err
	}
	if err := s.validator.Var("block_list", sched.BlockList, "dive,pkgname"); err != nil {
		return err
	}
	if err := sched.Validate(); err != nil {
		return domainerrors.Validation(err.Error())
	}
	return nil
}

// sync arms an enabled schedule and disarms a disabled one.
func (s *ScheduleService) sync(ctx context.Context, sched *domain.Schedule, reschedule bool) error {
	if !sched.Enabled {
		s.scheduler.Disarm(sched.ID)
		return nil
	}
	if _, err := s.scheduler.Rearm(ctx, sched.ID, reschedule); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return fmt.Errorf("arm schedule: %w", err)
	}
	return nil
}
