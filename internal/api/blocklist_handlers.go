package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func (s *Server) registerBlocklistRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getGlobalBlocklist",
		Method:      http.MethodGet,
		Path:        "/api/v1/blocklist",
		Summary:     "Get global blocklist",
		Description: "Returns the packages no schedule ever backs up",
		Tags:        []string{"Blocklists"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetGlobalBlocklist)

	huma.Register(s.api, huma.Operation{
		OperationID: "setGlobalBlocklist",
		Method:      http.MethodPut,
		Path:        "/api/v1/blocklist",
		Summary:     "Replace global blocklist",
		Tags:        []string{"Blocklists"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetGlobalBlocklist)

	huma.Register(s.api, huma.Operation{
		OperationID: "getScheduleBlocklist",
		Method:      http.MethodGet,
		Path:        "/api/v1/schedules/{id}/blocklist",
		Summary:     "Get schedule blocklist",
		Tags:        []string{"Blocklists"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetScheduleBlocklist)

	huma.Register(s.api, huma.Operation{
		OperationID: "setScheduleBlocklist",
		Method:      http.MethodPut,
		Path:        "/api/v1/schedules/{id}/blocklist",
		Summary:     "Replace schedule blocklist",
		Tags:        []string{"Blocklists"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetScheduleBlocklist)
}

// BlocklistBody lists blocked package names.
type BlocklistBody struct {
	Packages []string `json:"packages" doc:"Blocked package names"`
}

// BlocklistOutput wraps a blocklist for Huma.
type BlocklistOutput struct {
	Body BlocklistBody
}

// SetGlobalBlocklistInput wraps the global blocklist request for Huma.
type SetGlobalBlocklistInput struct {
	Body BlocklistBody
}

// SetScheduleBlocklistInput wraps a schedule blocklist request for Huma.
type SetScheduleBlocklistInput struct {
	ID   int64 `path:"id" minimum:"1" doc:"Schedule ID"`
	Body BlocklistBody
}

func (s *Server) handleGetGlobalBlocklist(ctx context.Context, _ *struct{}) (*BlocklistOutput, error) {
	return s.getBlocklist(ctx, domain.GlobalBlocklistID)
}

func (s *Server) handleSetGlobalBlocklist(ctx context.Context, input *SetGlobalBlocklistInput) (*BlocklistOutput, error) {
	return s.setBlocklist(ctx, domain.GlobalBlocklistID, input.Body.Packages)
}

func (s *Server) handleGetScheduleBlocklist(ctx context.Context, input *ScheduleIDInput) (*BlocklistOutput, error) {
	return s.getBlocklist(ctx, input.ID)
}

func (s *Server) handleSetScheduleBlocklist(ctx context.Context, input *SetScheduleBlocklistInput) (*BlocklistOutput, error) {
	return s.setBlocklist(ctx, input.ID, input.Body.Packages)
}

func (s *Server) getBlocklist(ctx context.Context, listID int64) (*BlocklistOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	pkgs, err := s.services.Schedule.GetBlocklist(ctx, listID)
	if err != nil {
		return nil, s.toAPIError(err, "get blocklist")
	}
	return &BlocklistOutput{Body: BlocklistBody{Packages: nonNil(pkgs)}}, nil
}

func (s *Server) setBlocklist(ctx context.Context, listID int64, pkgs []string) (*BlocklistOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	stored, err := s.services.Schedule.SetBlocklist(ctx, listID, pkgs)
	if err != nil {
		return nil, s.toAPIError(err, "set blocklist")
	}
	return &BlocklistOutput{Body: BlocklistBody{Packages: nonNil(stored)}}, nil
}
