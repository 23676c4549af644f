package search

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query string // free text over label, package name and note
	Kinds []Kind // empty = all

	// Filters
	Tags          []string  // any of
	Category      string    // latest backup contains the category, e.g. "data"
	InstalledOnly bool      // skip packages that are no longer installed
	OlderThan     time.Time // latest backup before this time; zero = no filter
	MinBackups    int

	// Pagination
	Limit  int
	Offset int

	// Sorting: "relevance", "label", "latest", "size"
	SortBy    string
	SortOrder string // "asc", "desc"

	IncludeFacets bool
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:         20,
		SortBy:        "relevance",
		SortOrder:     "desc",
		IncludeFacets: true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Facets SearchFacets `json:"facets,omitzero"`
}

// SearchHit represents a single search result.
type SearchHit struct {
	ID           string            `json:"id"`
	Kind         Kind              `json:"kind"`
	Score        float64           `json:"score"`
	Label        string            `json:"label"`
	VersionName  string            `json:"version_name,omitempty"`
	BackupCount  int               `json:"backup_count"`
	TotalSize    int64             `json:"total_size"`
	LatestBackup int64             `json:"latest_backup,omitempty"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

// SearchFacets contains facet counts.
type SearchFacets struct {
	Kinds      []FacetCount `json:"kinds,omitempty"`
	Tags       []FacetCount `json:"tags,omitempty"`
	Categories []FacetCount `json:"categories,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if params.Limit <= 0 {
		params.Limit = DefaultSearchParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), params.Limit, params.Offset, false)
	addSorting(req, params)

	if params.IncludeFacets {
		for _, field := range []string{"kind", "tags", "categories"} {
			req.AddFacet(field, bleve.NewFacetRequest(field, 20))
		}
	}
	if params.Query != "" {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("label")
	}
	req.Fields = []string{"kind", "label", "version_name", "backup_count", "total_size", "latest_backup"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		h := SearchHit{ID: hit.ID, Score: hit.Score}

		if k, ok := hit.Fields["kind"].(string); ok {
			h.Kind = Kind(k)
		}
		if l, ok := hit.Fields["label"].(string); ok {
			h.Label = l
		}
		if v, ok := hit.Fields["version_name"].(string); ok {
			h.VersionName = v
		}
		if n, ok := hit.Fields["backup_count"].(float64); ok {
			h.BackupCount = int(n)
		}
		if n, ok := hit.Fields["total_size"].(float64); ok {
			h.TotalSize = int64(n)
		}
		if n, ok := hit.Fields["latest_backup"].(float64); ok {
			h.LatestBackup = int64(n)
		}

		if len(hit.Fragments) > 0 {
			h.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					h.Highlights[field] = fragments[0]
				}
			}
		}

		result.Hits = append(result.Hits, h)
	}

	if params.IncludeFacets {
		result.Facets = extractFacets(res)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if params.Query != "" {
		labelMatch := bleve.NewMatchQuery(params.Query)
		labelMatch.SetField("label")
		labelMatch.SetBoost(3.0)

		nameMatch := bleve.NewMatchQuery(params.Query)
		nameMatch.SetField("name")
		nameMatch.SetBoost(2.0)

		noteMatch := bleve.NewMatchQuery(params.Query)
		noteMatch.SetField("note")

		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(params.Query))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("label")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{labelMatch, nameMatch, noteMatch, fuzzy}

		// Prefix query for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefix.SetField("label")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if len(params.Kinds) > 0 {
		kinds := make([]query.Query, len(params.Kinds))
		for i, k := range params.Kinds {
			tq := bleve.NewTermQuery(string(k))
			tq.SetField("kind")
			kinds[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(kinds...))
	}

	if len(params.Tags) > 0 {
		tags := make([]query.Query, len(params.Tags))
		for i, tag := range params.Tags {
			tq := bleve.NewTermQuery(tag)
			tq.SetField("tags")
			tags[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(tags...))
	}

	if params.Category != "" {
		tq := bleve.NewTermQuery(params.Category)
		tq.SetField("categories")
		queries = append(queries, tq)
	}

	if params.InstalledOnly {
		tq := bleve.NewTermQuery("true")
		tq.SetField("installed")
		queries = append(queries, tq)
	}

	if !params.OlderThan.IsZero() {
		lo := 1.0
		hi := float64(params.OlderThan.UnixMilli())
		rq := bleve.NewNumericRangeQuery(&lo, &hi)
		rq.SetField("latest_backup")
		queries = append(queries, rq)
	}

	if params.MinBackups > 0 {
		lo := float64(params.MinBackups)
		hi := math.MaxFloat64
		inclusive := true
		rq := bleve.NewNumericRangeInclusiveQuery(&lo, &hi, &inclusive, &inclusive)
		rq.SetField("backup_count")
		queries = append(queries, rq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params SearchParams) {
	var (
		field string
		desc  bool
	)
	switch params.SortBy {
	case "label", "name":
		field = "label"
		desc = params.SortOrder == "desc"
	case "latest":
		field = "latest_backup"
		desc = params.SortOrder != "asc"
	case "size":
		field = "total_size"
		desc = params.SortOrder != "asc"
	default:
		req.SortBy([]string{"-_score", "_id"})
		return
	}
	if desc {
		field = "-" + field
	}
	req.SortBy([]string{field, "_id"})
}

// extractFacets converts Bleve facets to our format.
func extractFacets(result *bleve.SearchResult) SearchFacets {
	var facets SearchFacets
	for field, dest := range map[string]*[]FacetCount{
		"kind":       &facets.Kinds,
		"tags":       &facets.Tags,
		"categories": &facets.Categories,
	} {
		f, ok := result.Facets[field]
		if !ok || f.Terms == nil {
			continue
		}
		for _, term := range f.Terms.Terms() {
			*dest = append(*dest, FacetCount{Value: term.Term, Count: term.Count})
		}
	}
	return facets
}
