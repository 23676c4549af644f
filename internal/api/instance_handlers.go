package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerInstanceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getInstance",
		Method:      http.MethodGet,
		Path:        "/api/v1/instance",
		Summary:     "Get server instance",
		Description: "Returns the identity of this server and its backup location",
		Tags:        []string{"Instance"},
	}, s.handleGetInstance)
}

// InstanceResponse contains server instance data in API responses.
type InstanceResponse struct {
	ID           string    `json:"id" doc:"Instance ID"`
	Name         string    `json:"name" doc:"Server name"`
	Version      string    `json:"version" doc:"Server version"`
	BackupRoot   string    `json:"backup_root" doc:"Backup location"`
	StartedAt    time.Time `json:"started_at" doc:"Process start time"`
	AuthRequired bool      `json:"auth_required" doc:"Whether requests need a bearer token"`
}

// InstanceOutput wraps the instance response for Huma.
type InstanceOutput struct {
	Body InstanceResponse
}

func (s *Server) handleGetInstance(ctx context.Context, _ *struct{}) (*InstanceOutput, error) {
	instance, err := s.services.Instance.GetInstance(ctx)
	if err != nil {
		return nil, s.toAPIError(err, "get instance")
	}

	return &InstanceOutput{
		Body: InstanceResponse{
			ID:           instance.ID,
			Name:         instance.Name,
			Version:      instance.Version,
			BackupRoot:   instance.BackupRoot,
			StartedAt:    instance.StartedAt,
			AuthRequired: s.authRequired,
		},
	}, nil
}
