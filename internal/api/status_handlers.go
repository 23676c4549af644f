package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Scheduler status",
		Description: "Returns running schedules, pending alarms, active batches and the wake lock state",
		Tags:        []string{"Status"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetStatus)
}

// StatusResponse is a snapshot of the scheduler.
type StatusResponse struct {
	Running      []dispatcher.Run     `json:"running" doc:"Active schedule runs"`
	Alarms       []dispatcher.Alarm   `json:"alarms" doc:"Pending alarms, soonest first"`
	Batches      []domain.BatchResult `json:"batches" doc:"Progress of running batches"`
	WakeLockHeld bool                 `json:"wake_lock_held" doc:"Whether a run keeps the device awake"`
}

// StatusOutput wraps the status response for Huma.
type StatusOutput struct {
	Body StatusResponse
}

func (s *Server) handleGetStatus(ctx context.Context, _ *struct{}) (*StatusOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	resp := StatusResponse{
		Running: []dispatcher.Run{},
		Alarms:  []dispatcher.Alarm{},
		Batches: []domain.BatchResult{},
	}
	if st := s.services.Status; st != nil {
		resp.Running = append(resp.Running, st.Running()...)
		resp.Alarms = append(resp.Alarms, st.Alarms()...)
		resp.Batches = append(resp.Batches, st.ActiveBatches()...)
		resp.WakeLockHeld = st.WakeLockHeld()
	}
	return &StatusOutput{Body: resp}, nil
}
