package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/command"
)

func (s *Server) registerCommandRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "runSchedule",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands/run-schedule",
		Summary:     "Run schedule now",
		Description: "Triggers a schedule immediately, ignoring its time of day",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRunSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelBatch",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands/cancel",
		Summary:     "Cancel batch",
		Description: "Drops the queued units of a running batch; units already executing finish",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCancel)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelSchedule",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands/cancel-schedule",
		Summary:     "Cancel schedule",
		Description: "Removes the pending alarm of a schedule. Non-periodic cancels also stop its running batch",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCancelSchedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "reschedule",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands/reschedule",
		Summary:     "Reschedule",
		Description: "Moves a schedule to a new time of day (default: two minutes from now) and re-arms it",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReschedule)

	huma.Register(s.api, huma.Operation{
		OperationID: "crash",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands/crash",
		Summary:     "Crash (debug)",
		Description: "Raises a panic inside the dispatcher boundary and reports the recovery",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCrash)

	huma.Register(s.api, huma.Operation{
		OperationID: "executeCommand",
		Method:      http.MethodPost,
		Path:        "/api/v1/commands",
		Summary:     "Execute command",
		Description: "Executes a named command: RUN_SCHEDULE, CANCEL, CANCEL_SCHEDULE, RESCHEDULE or CRASH",
		Tags:        []string{"Commands"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExecuteCommand)
}

// === DTOs ===

// RunScheduleRequest names the schedule to run.
type RunScheduleRequest struct {
	Name string `json:"name" minLength:"1" doc:"Schedule name"`
}

// RunScheduleInput wraps the run schedule request for Huma.
type RunScheduleInput struct {
	Body RunScheduleRequest
}

// CancelRequest names the batch to cancel.
type CancelRequest struct {
	Batch string `json:"batch" minLength:"1" doc:"Batch name"`
}

// CancelInput wraps the cancel request for Huma.
type CancelInput struct {
	Body CancelRequest
}

// CancelScheduleRequest selects the schedule whose alarm is removed.
type CancelScheduleRequest struct {
	ScheduleID int64 `json:"schedule_id" minimum:"1" doc:"Schedule ID"`
	Periodic   bool  `json:"periodic,omitempty" doc:"Only remove the alarm, keep a running batch"`
}

// CancelScheduleInput wraps the cancel schedule request for Huma.
type CancelScheduleInput struct {
	Body CancelScheduleRequest
}

// RescheduleRequest moves a schedule to a new time.
type RescheduleRequest struct {
	Name string `json:"name" minLength:"1" doc:"Schedule name"`
	Time string `json:"time,omitempty" pattern:"^[0-9]{1,2}:[0-9]{2}$" doc:"New time of day as HH:MM; empty means two minutes from now"`
}

// RescheduleInput wraps the reschedule request for Huma.
type RescheduleInput struct {
	Body RescheduleRequest
}

// ExecuteCommandInput wraps a generic command for Huma.
type ExecuteCommandInput struct {
	Body command.Command
}

// CommandOutput wraps a command reply for Huma.
type CommandOutput struct {
	Body command.Reply
}

// === Handlers ===

func (s *Server) handleRunSchedule(ctx context.Context, input *RunScheduleInput) (*CommandOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeCommands); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.RunSchedule(ctx, input.Body.Name)
	return commandOutput(s, reply, err, "run schedule")
}

func (s *Server) handleCancel(ctx context.Context, input *CancelInput) (*CommandOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeCommands); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.Cancel(ctx, input.Body.Batch)
	return commandOutput(s, reply, err, "cancel batch")
}

func (s *Server) handleCancelSchedule(ctx context.Context, input *CancelScheduleInput) (*CommandOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeCommands); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.CancelSchedule(ctx, input.Body.ScheduleID, input.Body.Periodic)
	return commandOutput(s, reply, err, "cancel schedule")
}

func (s *Server) handleReschedule(ctx context.Context, input *RescheduleInput) (*CommandOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeCommands); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.Reschedule(ctx, input.Body.Name, input.Body.Time)
	return commandOutput(s, reply, err, "reschedule")
}

func (s *Server) handleCrash(ctx context.Context, _ *struct{}) (*CommandOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeDebug); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.Crash(ctx)
	return commandOutput(s, reply, err, "crash")
}

func (s *Server) handleExecuteCommand(ctx context.Context, input *ExecuteCommandInput) (*CommandOutput, error) {
	scope := auth.ScopeCommands
	if strings.EqualFold(string(input.Body.Name), string(command.Crash)) {
		scope = auth.ScopeDebug
	}
	if err := s.requireScope(ctx, scope); err != nil {
		return nil, err
	}
	reply, err := s.services.Commands.Execute(ctx, input.Body)
	return commandOutput(s, reply, err, "execute command")
}

func commandOutput(s *Server, reply *command.Reply, err error, op string) (*CommandOutput, error) {
	if err != nil {
		return nil, s.toAPIError(err, op)
	}
	return &CommandOutput{Body: *reply}, nil
}
