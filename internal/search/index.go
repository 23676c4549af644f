package search

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// SearchIndex wraps a Bleve index of package documents.
//
// All public methods are safe for concurrent use. The mutex guards the index
// handle against Rebuild.
type SearchIndex struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	DataPath string       // Directory for index storage
	Logger   *slog.Logger // slog.Default() if nil
}

// mappingVersion is incremented whenever the index mapping changes.
// A mismatch rebuilds the index on startup.
const mappingVersion = "1"

// batchSize bounds one Bleve batch.
const batchSize = 500

// NewSearchIndex creates or opens a search index. A corrupted index or one
// with an outdated mapping is removed and recreated; the caller reindexes.
func NewSearchIndex(opts Options) (*SearchIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	indexPath := filepath.Join(opts.DataPath, "packages.bleve")
	versionPath := filepath.Join(opts.DataPath, "packages.version")

	var index bleve.Index
	needsRebuild := false

	if _, err := os.Stat(indexPath); err == nil {
		existing, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("search index has no version file, rebuilding",
				slog.String("new_version", mappingVersion))
			needsRebuild = true
		case string(existing) != mappingVersion:
			logger.Info("search index mapping version changed, rebuilding",
				slog.String("old_version", string(existing)),
				slog.String("new_version", mappingVersion))
			needsRebuild = true
		default:
			index, err = bleve.Open(indexPath)
			if err != nil {
				logger.Warn("failed to open existing index, recreating",
					slog.String("path", indexPath),
					slog.String("error", err.Error()))
				needsRebuild = true
			}
		}
	}

	if needsRebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
	}

	if index == nil {
		var err error
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write search version file", slog.String("error", err.Error()))
		}
		logger.Info("created new search index",
			slog.String("path", indexPath),
			slog.String("mapping_version", mappingVersion))
	} else {
		logger.Info("opened existing search index", slog.String("path", indexPath))
	}

	return &SearchIndex{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index and releases resources.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexDocument indexes a single document.
func (s *SearchIndex) IndexDocument(doc *SearchDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(doc.ID, doc.ToMap())
}

// IndexDocuments indexes documents in batches of batchSize.
func (s *SearchIndex) IndexDocuments(docs []*SearchDocument) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < len(docs); i += batchSize {
		end := min(i+batchSize, len(docs))

		batch := s.index.NewBatch()
		for _, doc := range docs[i:end] {
			if err := batch.Index(doc.ID, doc.ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", doc.ID, err)
			}
		}

		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}

	return nil
}

// DeleteDocument removes a document from the index.
func (s *SearchIndex) DeleteDocument(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(id)
}

// DeleteDocuments removes multiple documents from the index.
func (s *SearchIndex) DeleteDocuments(ids []string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := s.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	return s.index.Batch(batch)
}

// DocumentCount returns the total number of indexed documents.
func (s *SearchIndex) DocumentCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Rebuild drops the existing index and creates an empty one. It blocks all
// other operations until done.
func (s *SearchIndex) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	s.index = index
	s.logger.Info("rebuilt search index", slog.String("path", s.path))

	return nil
}
