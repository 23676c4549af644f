package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/search"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: filepath.Join(cfg.App.DataDir, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{SearchIndex: index}, nil
}

// ProvideSearchService provides the search service.
func ProvideSearchService(i do.Injector) (*service.SearchService, error) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	reg := do.MustInvoke[*registry.Registry](i)
	inv := do.MustInvoke[*inventory.Source](i)
	db := do.MustInvoke[*SQLiteHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSearchService(indexHandle.SearchIndex, reg, inv, db.Store, log.Logger), nil
}

// TriggerSearchReindexIfNeeded rebuilds an empty index when there are
// packages to index. Should be called after all services are wired.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	searchService := do.MustInvoke[*service.SearchService](i)
	reg := do.MustInvoke[*registry.Registry](i)
	inv := do.MustInvoke[*inventory.Source](i)
	log := do.MustInvoke[*logger.Logger](i)

	docCount, _ := searchService.DocumentCount()
	if docCount > 0 {
		return
	}
	if reg.Count() == 0 && len(inv.Packages()) == 0 {
		return
	}

	log.Info("Search index is empty but packages exist, triggering initial reindex",
		"records", reg.Count(),
		"installed", len(inv.Packages()),
	)

	go func() {
		if err := searchService.ReindexAll(context.Background()); err != nil {
			log.WithError(err).Error("Initial search reindex failed")
		} else {
			count, _ := searchService.DocumentCount()
			log.Info("Initial search reindex completed", "documents", count)
		}
	}()
}
