package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchPackages",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search packages",
		Description: "Full-text search over package labels, names and notes with backup filters and facets",
		Tags:        []string{"Search"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "reindexSearch",
		Method:      http.MethodPost,
		Path:        "/api/v1/search/reindex",
		Summary:     "Rebuild search index",
		Tags:        []string{"Search"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReindex)
}

// SearchInput contains search query parameters.
type SearchInput struct {
	Query         string `query:"q" doc:"Search query"`
	Kinds         string `query:"kinds" doc:"Comma-separated kinds: user, system, special"`
	Tags          string `query:"tags" doc:"Comma-separated custom tags (any of)"`
	Category      string `query:"category" doc:"Latest backup contains this category, e.g. data"`
	InstalledOnly bool   `query:"installed_only" doc:"Skip packages that are no longer installed"`
	OlderThanDays int    `query:"older_than_days" minimum:"0" doc:"Latest backup older than this many days"`
	MinBackups    int    `query:"min_backups" minimum:"0" doc:"Minimum number of backups"`
	Limit         int    `query:"limit" minimum:"0" maximum:"200" doc:"Max results (default 20)"`
	Offset        int    `query:"offset" minimum:"0" doc:"Result offset"`
	Sort          string `query:"sort" enum:"relevance,label,latest,size" doc:"Sort field"`
	Order         string `query:"order" enum:"asc,desc" doc:"Sort order"`
}

// SearchOutput wraps search results for Huma.
type SearchOutput struct {
	Body search.SearchResult
}

// ReindexOutput wraps the reindex response for Huma.
type ReindexOutput struct {
	Body struct {
		Documents uint64 `json:"documents" doc:"Packages indexed"`
	}
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeRead); err != nil {
		return nil, err
	}
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("search is not available")
	}

	params := search.DefaultSearchParams()
	params.Query = strings.TrimSpace(input.Query)
	for _, k := range splitCSV(input.Kinds) {
		params.Kinds = append(params.Kinds, search.Kind(k))
	}
	params.Tags = splitCSV(input.Tags)
	params.Category = input.Category
	params.InstalledOnly = input.InstalledOnly
	if input.OlderThanDays > 0 {
		params.OlderThan = time.Now().AddDate(0, 0, -input.OlderThanDays)
	}
	params.MinBackups = input.MinBackups
	if input.Limit > 0 {
		params.Limit = input.Limit
	}
	params.Offset = input.Offset
	if input.Sort != "" {
		params.SortBy = input.Sort
	}
	if input.Order != "" {
		params.SortOrder = input.Order
	}

	result, err := s.services.Search.Search(ctx, params)
	if err != nil {
		return nil, s.toAPIError(err, "search")
	}
	return &SearchOutput{Body: *result}, nil
}

func (s *Server) handleReindex(ctx context.Context, _ *struct{}) (*ReindexOutput, error) {
	if err := s.requireScope(ctx, auth.ScopeWrite); err != nil {
		return nil, err
	}
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("search is not available")
	}
	if err := s.services.Search.ReindexAll(ctx); err != nil {
		return nil, s.toAPIError(err, "reindex")
	}
	count, err := s.services.Search.DocumentCount()
	if err != nil {
		return nil, s.toAPIError(err, "reindex")
	}
	out := &ReindexOutput{}
	out.Body.Documents = count
	return out, nil
}

func splitCSV(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
