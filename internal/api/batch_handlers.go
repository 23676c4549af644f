package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/store"
)

func (s *Server) registerBatchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBatches",
		Method:      http.MethodGet,
		Path:        "/api/v1/batches",
		Summary:     "List completed batches",
		Description: "Pages through batch history, newest first",
		Tags:        []string{"Batches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBatches)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBatch",
		Method:      http.MethodGet,
		Path:        "/api/v1/batches/{name}",
		Summary:     "Get batch",
		Description: "Returns a running batch's progress or a completed batch's result",
		Tags:        []string{"Batches"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBatch)

	huma.Register(s.api, huma.Operation{
		OperationID:   "startBatch",
		Method:        http.MethodPost,
		Path:          "/api/v1/batches",
		Summary:       "Start manual batch",
		Description:   "Backs up or restores an explicit list of packages outside any schedule",
		Tags:          []string{"Batches"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusAccepted,
	}, s.handleStartBatch)
}

// ListBatchesInput contains batch history query parameters.
type ListBatchesInput struct {
	ScheduleID int64  `query:"schedule_id" minimum:"0" doc:"Only batches of this schedule"`
	Limit      int    `query:"limit" minimum:"0" maximum:"500" doc:"Page size (default 50)"`
	Cursor     string `query:"cursor" doc:"Cursor from a previous page"`
}

// ListBatchesOutput wraps a page of batches for Huma.
type ListBatchesOutput struct {
	Body store.PaginatedResult[domain.BatchResult]
}

// BatchNameInput selects a batch.
type BatchNameInput struct {
	Name string `path:"name" doc:"Batch name"`
}

// BatchOutput wraps a batch for Huma.
type BatchOutput struct {
	Body struct {
		domain.BatchResult
		Running bool `json:"running" doc:"Whether the batch is still running"`
	}
}

// StartBatchRequest describes a manual batch.
type StartBatchRequest struct {
	Packages  []string `json:"packages" minItems:"1" doc:"Package names"`
	Mode      []string `json:"mode,omitempty" doc:"Categories: apk, data, device-protected, external, obb, media or all (default)"`
	Direction string   `json:"direction,omitempty" enum:"backup,restore" doc:"backup (default) or restore"`
}

// StartBatchInput wraps the manual batch request for Huma.
type StartBatchInput struct {
	Body StartBatchRequest
}

// StartBatchOutput wraps the started batch for Huma.
type StartBatchOutput struct {
	Body dispatcher.Result
}

func (s *Server) handleListBatches(ctx context.Context, input *ListBatchesInput) (*ListBatchesOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	page, err := s.services.Backup.ListBatches(ctx, input.ScheduleID, store.PaginationParams{
		Limit:  input.Limit,
		Cursor: input.Cursor,
	})
	if err != nil {
		return nil, s.toAPIError(err, "list batches")
	}
	if page.Items == nil {
		page.Items = []domain.BatchResult{}
	}
	return &ListBatchesOutput{Body: *page}, nil
}

func (s *Server) handleGetBatch(ctx context.Context, input *BatchNameInput) (*BatchOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}

	out := &BatchOutput{}
	if s.services.Status != nil {
		for _, b := range s.services.Status.ActiveBatches() {
			if b.Name == input.Name {
				out.Body.BatchResult = b
				out.Body.Running = true
				return out, nil
			}
		}
	}

	result, err := s.services.Backup.GetBatch(ctx, input.Name)
	if err != nil {
		return nil, s.toAPIError(err, "get batch")
	}
	out.Body.BatchResult = *result
	return out, nil
}

func (s *Server) handleStartBatch(ctx context.Context, input *StartBatchInput) (*StartBatchOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeCommands); err != nil {
		return nil, err
	}
	if s.services.Manual == nil {
		return nil, s.toAPIError(domainerrors.Internal("manual batches are not available"), "start batch")
	}

	req := dispatcher.ManualRequest{
		Packages:  input.Body.Packages,
		Mode:      domain.ModeAll,
		Direction: domain.DirectionBackup,
	}
	if len(input.Body.Mode) > 0 {
		mode, err := domain.ParseMode(input.Body.Mode)
		if err != nil {
			return nil, s.toAPIError(domainerrors.Validation(err.Error()), "start batch")
		}
		req.Mode = mode
	}
	if input.Body.Direction != "" {
		req.Direction = domain.Direction(input.Body.Direction)
	}

	res, err := s.services.Manual.RunManual(ctx, req)
	if err != nil {
		return nil, s.toAPIError(err, "start batch")
	}
	return &StartBatchOutput{Body: res}, nil
}
