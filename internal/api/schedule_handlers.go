package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

func (s *Server) registerScheduleRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listSchedules",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules",
		Summary:     "List schedules",
		Description: "Returns all schedules ordered by name",
		Tags:        []string{"Schedules"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSchedules)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createSchedule",
		Method:        http.MethodPost,
		Path:          "/api/v1/schedules",
		Summary:       "Create schedule",
		Description:   "Creates a schedule. Enabled schedules are armed right away",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSchedule",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Get schedule",
		Tags:        []string{"Schedules"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateSchedule",
		Method:      http.MethodPut,
		Path:        "/api/v1/schedules/{id}",
		Summary:     "Update schedule",
		Description: "Replaces a schedule. Changing its time or interval re-anchors it to now",
		Tags:        []string{"Schedules"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "setScheduleEnabled",
		Method:      http.MethodPatch,
		Path:        "/api/v1/schedules/{id}/enabled",
		Summary:     "Enable or disable schedule",
		Tags:        []string{"Schedules"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetScheduleEnabled)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteSchedule",
		Method:        http.MethodDelete,
		Path:          "/api/v1/schedules/{id}",
		Summary:       "Delete schedule",
		Description:   "Deletes a schedule and removes its alarm",
		Tags:          []string{"Schedules"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "getScheduleNextRun",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules/{id}/next",
		Summary:     "Next run",
		Description: "Returns the armed alarm of a schedule and the computed next trigger",
		Tags:        []string{"Schedules"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetNextRun)
}

// === DTOs ===

// ScheduleRequest is the editable part of a schedule.
type ScheduleRequest struct {
	Name          string               `json:"name,omitempty" maxLength:"128" doc:"Schedule name; a random one is picked when empty"`
	Enabled       bool                 `json:"enabled" doc:"Whether the schedule is armed"`
	Time          string               `json:"time" pattern:"^[0-9]{1,2}:[0-9]{2}$" doc:"Time of day as HH:MM"`
	Interval      int                  `json:"interval" minimum:"1" maximum:"365" doc:"Days between runs"`
	Mode          []string             `json:"mode,omitempty" doc:"Backup categories: apk, data, device-protected, external, obb, media or all (default)"`
	Filter        int                  `json:"filter,omitempty" minimum:"0" maximum:"7" doc:"Main filter bitmask: 1 special, 2 user, 4 system (default: user)"`
	SpecialFilter domain.SpecialFilter `json:"special_filter,omitzero" doc:"Tri-state special filters: 0 any, 1 only, 2 exclude"`
	CustomList    []string             `json:"custom_list,omitempty" doc:"Only these packages"`
	BlockList     []string             `json:"block_list,omitempty" doc:"Never these packages"`
	Tags          []string             `json:"tags,omitempty" doc:"Only packages carrying one of these tags"`
}

func (r ScheduleRequest) toDomain(id int64) (*domain.Schedule, error) {
	hour, minute, err := domain.ParseTimeOfDay(r.Time)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	mode := domain.ModeAll
	if len(r.Mode) > 0 {
		if mode, err = domain.ParseMode(r.Mode); err != nil {
			return nil, domainerrors.Validation(err.Error())
		}
	}
	filter := r.Filter
	if filter == 0 {
		filter = domain.MainFilterUser
	}
	return &domain.Schedule{
		ID:            id,
		Name:          r.Name,
		Enabled:       r.Enabled,
		TimeHour:      hour,
		TimeMinute:    minute,
		Interval:      r.Interval,
		Mode:          mode,
		Filter:        filter,
		SpecialFilter: r.SpecialFilter,
		CustomList:    r.CustomList,
		BlockList:     r.BlockList,
		TagsList:      r.Tags,
	}, nil
}

// ScheduleResponse contains schedule data in API responses.
type ScheduleResponse struct {
	ID            int64                `json:"id" doc:"Schedule ID"`
	Name          string               `json:"name" doc:"Schedule name"`
	Enabled       bool                 `json:"enabled" doc:"Whether the schedule is armed"`
	Time          string               `json:"time" doc:"Time of day as HH:MM"`
	Interval      int                  `json:"interval" doc:"Days between runs"`
	Mode          []string             `json:"mode" doc:"Backup categories"`
	Filter        int                  `json:"filter" doc:"Main filter bitmask"`
	SpecialFilter domain.SpecialFilter `json:"special_filter" doc:"Special filters"`
	CustomList    []string             `json:"custom_list" doc:"Only these packages"`
	BlockList     []string             `json:"block_list" doc:"Never these packages"`
	Tags          []string             `json:"tags" doc:"Tag filter"`
	TimePlaced    time.Time            `json:"time_placed,omitzero" doc:"Anchor of the interval"`
	TimeToRun     time.Time            `json:"time_to_run,omitzero" doc:"Last armed trigger time"`
}

func toScheduleResponse(sc *domain.Schedule) ScheduleResponse {
	modes := make([]string, 0, 6)
	for _, m := range sc.Mode.Modes() {
		modes = append(modes, m.String())
	}
	return ScheduleResponse{
		ID:            sc.ID,
		Name:          sc.Name,
		Enabled:       sc.Enabled,
		Time:          sc.TimeOfDay(),
		Interval:      sc.Interval,
		Mode:          modes,
		Filter:        sc.Filter,
		SpecialFilter: sc.SpecialFilter,
		CustomList:    nonNil(sc.CustomList),
		BlockList:     nonNil(sc.BlockList),
		Tags:          nonNil(sc.TagsList),
		TimePlaced:    sc.TimePlaced,
		TimeToRun:     sc.TimeToRun,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListSchedulesResponse contains a list of schedules.
type ListSchedulesResponse struct {
	Schedules []ScheduleResponse `json:"schedules" doc:"Schedules ordered by name"`
}

// ListSchedulesOutput wraps the list schedules response for Huma.
type ListSchedulesOutput struct {
	Body ListSchedulesResponse
}

// ScheduleOutput wraps a schedule for Huma.
type ScheduleOutput struct {
	Body ScheduleResponse
}

// ScheduleIDInput selects a schedule by ID.
type ScheduleIDInput struct {
	ID int64 `path:"id" minimum:"1" doc:"Schedule ID"`
}

// CreateScheduleInput wraps the create schedule request for Huma.
type CreateScheduleInput struct {
	Body ScheduleRequest
}

// UpdateScheduleInput wraps the update schedule request for Huma.
type UpdateScheduleInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Schedule ID"`
	Body ScheduleRequest
}

// SetEnabledRequest toggles a schedule.
type SetEnabledRequest struct {
	Enabled bool `json:"enabled" doc:"New state"`
}

// SetEnabledInput wraps the toggle request for Huma.
type SetEnabledInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Schedule ID"`
	Body SetEnabledRequest
}

// NextRunResponse describes when a schedule fires next.
type NextRunResponse struct {
	ScheduleID int64     `json:"schedule_id" doc:"Schedule ID"`
	Armed      bool      `json:"armed" doc:"Whether an alarm is pending"`
	At         time.Time `json:"at,omitzero" doc:"Time of the pending alarm"`
	Preview    time.Time `json:"preview" doc:"Next trigger computed from the schedule"`
}

// NextRunOutput wraps the next run response for Huma.
type NextRunOutput struct {
	Body NextRunResponse
}

// === Handlers ===

func (s *Server) handleListSchedules(ctx context.Context, _ *struct{}) (*ListSchedulesOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	schedules, err := s.services.Schedule.ListSchedules(ctx)
	if err != nil {
		return nil, s.toAPIError(err, "list schedules")
	}

	resp := ListSchedulesResponse{Schedules: make([]ScheduleResponse, 0, len(schedules))}
	for _, sc := range schedules {
		resp.Schedules = append(resp.Schedules, toScheduleResponse(sc))
	}
	return &ListSchedulesOutput{Body: resp}, nil
}

func (s *Server) handleCreateSchedule(ctx context.Context, input *CreateScheduleInput) (*ScheduleOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	sched, err := input.Body.toDomain(0)
	if err != nil {
		return nil, s.toAPIError(err, "create schedule")
	}
	created, err := s.services.Schedule.CreateSchedule(ctx, sched)
	if err != nil {
		return nil, s.toAPIError(err, "create schedule")
	}
	return &ScheduleOutput{Body: toScheduleResponse(created)}, nil
}

func (s *Server) handleGetSchedule(ctx context.Context, input *ScheduleIDInput) (*ScheduleOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	sched, err := s.services.Schedule.GetSchedule(ctx, input.ID)
	if err != nil {
		return nil, s.toAPIError(err, "get schedule")
	}
	return &ScheduleOutput{Body: toScheduleResponse(sched)}, nil
}

func (s *Server) handleUpdateSchedule(ctx context.Context, input *UpdateScheduleInput) (*ScheduleOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	sched, err := input.Body.toDomain(input.ID)
	if err != nil {
		return nil, s.toAPIError(err, "update schedule")
	}
	if sched.Name == "" {
		return nil, s.toAPIError(domainerrors.Validation("name is required"), "update schedule")
	}
	updated, err := s.services.Schedule.UpdateSchedule(ctx, sched)
	if err != nil {
		return nil, s.toAPIError(err, "update schedule")
	}
	return &ScheduleOutput{Body: toScheduleResponse(updated)}, nil
}

func (s *Server) handleSetScheduleEnabled(ctx context.Context, input *SetEnabledInput) (*ScheduleOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	sched, err := s.services.Schedule.SetEnabled(ctx, input.ID, input.Body.Enabled)
	if err != nil {
		return nil, s.toAPIError(err, "set schedule enabled")
	}
	return &ScheduleOutput{Body: toScheduleResponse(sched)}, nil
}

func (s *Server) handleDeleteSchedule(ctx context.Context, input *ScheduleIDInput) (*struct{}, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	if err := s.services.Schedule.DeleteSchedule(ctx, input.ID); err != nil {
		return nil, s.toAPIError(err, "delete schedule")
	}
	return nil, nil
}

func (s *Server) handleGetNextRun(ctx context.Context, input *ScheduleIDInput) (*NextRunOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	next, err := s.services.Schedule.NextRun(ctx, input.ID)
	if err != nil {
		return nil, s.toAPIError(err, "get next run")
	}
	return &NextRunOutput{Body: NextRunResponse{
		ScheduleID: next.ScheduleID,
		Armed:      next.Armed,
		At:         next.At,
		Preview:    next.Preview,
	}}, nil
}
