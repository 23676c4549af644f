package api

import (
	"cmp"
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func (s *Server) registerExtrasRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listExtras",
		Method:      http.MethodGet,
		Path:        "/api/v1/extras",
		Summary:     "List package extras",
		Description: "Returns custom tags and notes of every annotated package",
		Tags:        []string{"Extras"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListExtras)

	huma.Register(s.api, huma.Operation{
		OperationID: "listExtraTags",
		Method:      http.MethodGet,
		Path:        "/api/v1/extras/tags",
		Summary:     "List custom tags",
		Description: "Returns every custom tag in use",
		Tags:        []string{"Extras"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListExtraTags)

	huma.Register(s.api, huma.Operation{
		OperationID: "getExtras",
		Method:      http.MethodGet,
		Path:        "/api/v1/extras/{package}",
		Summary:     "Get package extras",
		Tags:        []string{"Extras"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetExtras)

	huma.Register(s.api, huma.Operation{
		OperationID: "setExtras",
		Method:      http.MethodPut,
		Path:        "/api/v1/extras/{package}",
		Summary:     "Set package extras",
		Description: "Replaces tags and note of a package. Empty extras are deleted",
		Tags:        []string{"Extras"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetExtras)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteExtras",
		Method:        http.MethodDelete,
		Path:          "/api/v1/extras/{package}",
		Summary:       "Delete package extras",
		Tags:          []string{"Extras"},
		DefaultStatus: http.StatusNoContent,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteExtras)
}

// ExtrasResponse contains the extras of one package.
type ExtrasResponse struct {
	PackageName string   `json:"package_name" doc:"Package name"`
	Tags        []string `json:"tags" doc:"Normalized custom tags"`
	Note        string   `json:"note,omitempty" doc:"Free-form note"`
}

func toExtrasResponse(e *domain.AppExtras) ExtrasResponse {
	return ExtrasResponse{PackageName: e.PackageName, Tags: nonNil(e.CustomTags), Note: e.Note}
}

// ListExtrasOutput wraps all extras for Huma.
type ListExtrasOutput struct {
	Body struct {
		Extras []ExtrasResponse `json:"extras" doc:"Extras ordered by package name"`
	}
}

// TagsOutput wraps the tag list for Huma.
type TagsOutput struct {
	Body struct {
		Tags []string `json:"tags" doc:"Tags in use"`
	}
}

// PackageInput selects a package.
type PackageInput struct {
	Package string `path:"package" doc:"Package name"`
}

// SetExtrasRequest is the request body for setting extras.
type SetExtrasRequest struct {
	Tags []string `json:"tags,omitempty" doc:"Custom tags; normalized to lowercase slugs"`
	Note string   `json:"note,omitempty" maxLength:"2000" doc:"Free-form note"`
}

// SetExtrasInput wraps the set extras request for Huma.
type SetExtrasInput struct {
	Package string `path:"package" doc:"Package name"`
	Body    SetExtrasRequest
}

// ExtrasOutput wraps one package's extras for Huma.
type ExtrasOutput struct {
	Body ExtrasResponse
}

func (s *Server) handleListExtras(ctx context.Context, _ *struct{}) (*ListExtrasOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	all, err := s.services.Extras.ListExtras(ctx)
	if err != nil {
		return nil, s.toAPIError(err, "list extras")
	}

	out := &ListExtrasOutput{}
	out.Body.Extras = make([]ExtrasResponse, 0, len(all))
	for _, e := range all {
		out.Body.Extras = append(out.Body.Extras, toExtrasResponse(&e))
	}
	slices.SortFunc(out.Body.Extras, func(a, b ExtrasResponse) int {
		return cmp.Compare(a.PackageName, b.PackageName)
	})
	return out, nil
}

func (s *Server) handleListExtraTags(ctx context.Context, _ *struct{}) (*TagsOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	tags, err := s.services.Extras.ListTags(ctx)
	if err != nil {
		return nil, s.toAPIError(err, "list tags")
	}
	out := &TagsOutput{}
	out.Body.Tags = nonNil(tags)
	return out, nil
}

func (s *Server) handleGetExtras(ctx context.Context, input *PackageInput) (*ExtrasOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	e, err := s.services.Extras.GetExtras(ctx, input.Package)
	if err != nil {
		return nil, s.toAPIError(err, "get extras")
	}
	return &ExtrasOutput{Body: toExtrasResponse(e)}, nil
}

func (s *Server) handleSetExtras(ctx context.Context, input *SetExtrasInput) (*ExtrasOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	e, err := s.services.Extras.SetExtras(ctx, &domain.AppExtras{
		PackageName: input.Package,
		CustomTags:  input.Body.Tags,
		Note:        input.Body.Note,
	})
	if err != nil {
		return nil, s.toAPIError(err, "set extras")
	}
	return &ExtrasOutput{Body: toExtrasResponse(e)}, nil
}

func (s *Server) handleDeleteExtras(ctx context.Context, input *PackageInput) (*struct{}, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	if err := s.services.Extras.DeleteExtras(ctx, input.Package); err != nil {
		return nil, s.toAPIError(err, "delete extras")
	}
	return nil, nil
}
