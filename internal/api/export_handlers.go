package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listExports",
		Method:      http.MethodGet,
		Path:        "/api/v1/exports",
		Summary:     "List exports",
		Description: "Returns schedule export files, newest first",
		Tags:        []string{"Exports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListExports)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createExport",
		Method:        http.MethodPost,
		Path:          "/api/v1/exports",
		Summary:       "Export schedules",
		Description:   "Writes all schedules and blocklists to a compressed export file",
		Tags:          []string{"Exports"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateExport)

	huma.Register(s.api, huma.Operation{
		OperationID: "getExport",
		Method:      http.MethodGet,
		Path:        "/api/v1/exports/{name}",
		Summary:     "Read export",
		Description: "Returns the decoded content of an export file",
		Tags:        []string{"Exports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetExport)

	huma.Register(s.api, huma.Operation{
		OperationID: "importExport",
		Method:      http.MethodPost,
		Path:        "/api/v1/exports/{name}/import",
		Summary:     "Import export",
		Description: "Creates the exported schedules missing by name and merges the global blocklist",
		Tags:        []string{"Exports"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleImportExport)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteExport",
		Method:        http.MethodDelete,
		Path:          "/api/v1/exports/{name}",
		Summary:       "Delete export",
		Tags:          []string{"Exports"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteExport)
}

// ListExportsOutput wraps the export listing for Huma.
type ListExportsOutput struct {
	Body struct {
		Exports []service.ExportInfo `json:"exports" doc:"Export files"`
	}
}

// CreateExportRequest names a new export.
type CreateExportRequest struct {
	Name string `json:"name,omitempty" pattern:"^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$" doc:"Export name; derived from the current time when empty"`
}

// CreateExportInput wraps the export request for Huma.
type CreateExportInput struct {
	Body CreateExportRequest
}

// ExportInfoOutput wraps export metadata for Huma.
type ExportInfoOutput struct {
	Body service.ExportInfo
}

// ExportNameInput selects an export.
type ExportNameInput struct {
	Name string `path:"name" doc:"Export name"`
}

// ExportDocumentOutput wraps a decoded export for Huma.
type ExportDocumentOutput struct {
	Body service.ExportDocument
}

// ImportOutput wraps the import result for Huma.
type ImportOutput struct {
	Body service.ImportResult
}

func (s *Server) handleListExports(ctx context.Context, _ *struct{}) (*ListExportsOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	exports, err := s.services.Export.List()
	if err != nil {
		return nil, s.toAPIError(err, "list exports")
	}
	out := &ListExportsOutput{}
	out.Body.Exports = exports
	return out, nil
}

func (s *Server) handleCreateExport(ctx context.Context, input *CreateExportInput) (*ExportInfoOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	info, err := s.services.Export.Export(ctx, input.Body.Name)
	if err != nil {
		return nil, s.toAPIError(err, "export schedules")
	}
	return &ExportInfoOutput{Body: *info}, nil
}

func (s *Server) handleGetExport(ctx context.Context, input *ExportNameInput) (*ExportDocumentOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	doc, err := s.services.Export.Read(input.Name)
	if err != nil {
		return nil, s.toAPIError(err, "read export")
	}
	return &ExportDocumentOutput{Body: *doc}, nil
}

func (s *Server) handleImportExport(ctx context.Context, input *ExportNameInput) (*ImportOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	result, err := s.services.Export.Import(ctx, input.Name)
	if err != nil {
		return nil, s.toAPIError(err, "import export")
	}
	return &ImportOutput{Body: *result}, nil
}

func (s *Server) handleDeleteExport(ctx context.Context, input *ExportNameInput) (*struct{}, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	if err := s.services.Export.Delete(input.Name); err != nil {
		return nil, s.toAPIError(err, "delete export")
	}
	return nil, nil
}
