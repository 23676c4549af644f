package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for package documents.
//
// Labels and notes are free text, package names are split on dots and
// matched with the simple analyzer, and kind/tags/categories are keywords
// for exact filtering and facets.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	labelFieldMapping := bleve.NewTextFieldMapping()
	labelFieldMapping.Analyzer = standard.Name
	labelFieldMapping.Store = true
	labelFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("label", labelFieldMapping)

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	nameFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("name", nameFieldMapping)

	noteFieldMapping := bleve.NewTextFieldMapping()
	noteFieldMapping.Analyzer = standard.Name
	noteFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("note", noteFieldMapping)

	versionFieldMapping := bleve.NewTextFieldMapping()
	versionFieldMapping.Analyzer = keyword.Name
	versionFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("version_name", versionFieldMapping)

	// --- Keyword fields (exact match, facetable) ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	for _, field := range []string{"kind", "tags", "categories", "installed"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	// --- Numeric fields (range queries, sorting) ---

	for _, field := range []string{"backup_count", "total_size", "latest_backup"} {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
