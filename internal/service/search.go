package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/search"
)

// RecordSource is the backup registry as seen by services.
type RecordSource interface {
	Get(pkg string) []domain.BackupRecord
	GetAll() map[string][]domain.BackupRecord
	Packages() []string
	Subscribe(ctx context.Context) <-chan registry.Change
}

// PackageSource is the installed package inventory.
type PackageSource interface {
	Packages() []domain.Package
	Lookup(name string) (domain.Package, bool)
}

// ExtrasSource reads package extras.
type ExtrasSource interface {
	GetExtras(ctx context.Context, pkg string) (*domain.AppExtras, error)
	ListExtras(ctx context.Context) (map[string]domain.AppExtras, error)
}

// SearchService keeps the package search index in step with the registry,
// the inventory and package extras, and runs queries against it.
type SearchService struct {
	index     *search.SearchIndex
	records   RecordSource
	inventory PackageSource
	extras    ExtrasSource
	logger    *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(index *search.SearchIndex, records RecordSource, inventory PackageSource, extras ExtrasSource, logger *slog.Logger) *SearchService {
	return &SearchService{
		index:     index,
		records:   records,
		inventory: inventory,
		extras:    extras,
		logger:    logger,
	}
}

// Search runs a query against the index.
func (s *SearchService) Search(ctx context.Context, params search.SearchParams) (*search.SearchResult, error) {
	return s.index.Search(ctx, params)
}

// DocumentCount returns the number of indexed packages.
func (s *SearchService) DocumentCount() (uint64, error) {
	return s.index.DocumentCount()
}

// IndexPackage reindexes one package, or drops it when it is neither
// installed nor backed up.
func (s *SearchService) IndexPackage(ctx context.Context, name string) error {
	records := s.records.Get(name)
	pkg, installed := s.inventory.Lookup(name)
	if !installed && len(records) == 0 {
		return s.index.DeleteDocument(name)
	}

	var extras *domain.AppExtras
	if e, err := s.extras.GetExtras(ctx, name); err == nil {
		extras = e
	} else if !isNotFound(err) {
		return fmt.Errorf("get extras: %w", err)
	}

	doc := search.PackageToSearchDocument(name, pkg, records, extras)
	if err := s.index.IndexDocument(doc); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	s.logger.Debug("indexed package", "package", name, "backups", len(records))
	return nil
}

// ReindexAll rebuilds the entire search index.
func (s *SearchService) ReindexAll(ctx context.Context) error {
	s.logger.Info("starting full reindex")

	if err := s.index.Rebuild(); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	extras, err := s.extras.ListExtras(ctx)
	if err != nil {
		return fmt.Errorf("list extras: %w", err)
	}
	all := s.records.GetAll()

	installed := make(map[string]domain.Package)
	for _, p := range s.inventory.Packages() {
		installed[p.Name] = p
	}

	names := make([]string, 0, len(installed)+len(all))
	for name := range installed {
		names = append(names, name)
	}
	for name := range all {
		names = append(names, name)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	docs := make([]*search.SearchDocument, 0, len(names))
	for _, name := range names {
		var e *domain.AppExtras
		if x, ok := extras[name]; ok {
			e = &x
		}
		docs = append(docs, search.PackageToSearchDocument(name, installed[name], all[name], e))
	}

	if len(docs) > 0 {
		if err := s.index.IndexDocuments(docs); err != nil {
			return fmt.Errorf("index packages: %w", err)
		}
	}

	total, _ := s.index.DocumentCount()
	s.logger.Info("full reindex complete", "total_documents", total)
	return nil
}

// Follow reindexes packages touched by registry changes until ctx is done.
// Wholesale changes trigger a full reindex. Run it in a goroutine.
func (s *SearchService) Follow(ctx context.Context) {
	for c := range s.records.Subscribe(ctx) {
		if c.All {
			if err := s.ReindexAll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reindex after rescan failed", "error", err)
			}
			continue
		}
		for _, pkg := range c.Packages {
			if err := s.IndexPackage(ctx, pkg); err != nil && ctx.Err() == nil {
				s.logger.Warn("failed to reindex package", "package", pkg, "error", err)
			}
		}
	}
}
