package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// BatchWriter provides efficient bulk writes of registry entries using
// BadgerDB's WriteBatch.
type BatchWriter struct {
	store     *Store
	batch     *badger.WriteBatch
	maxSize   int
	count     int
	autoFlush bool
}

// NewBatchWriter creates a new batch writer that will auto-flush when maxSize is reached
func (s *Store) NewBatchWriter(maxSize int) *BatchWriter {
	return &BatchWriter{
		store:     s,
		batch:     s.db.NewWriteBatch(),
		maxSize:   maxSize,
		autoFlush: true,
	}
}

// PutRecords adds the record list of one package to the batch. An empty
// list deletes the package entry.
func (b *BatchWriter) PutRecords(pkg string, records []domain.BackupRecord) error {
	key := []byte(recordPrefix + pkg)

	if len(records) == 0 {
		if err := b.batch.Delete(key); err != nil {
			return fmt.Errorf("batch delete records: %w", err)
		}
	} else {
		data, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshal records: %w", err)
		}
		if err := b.batch.Set(key, data); err != nil {
			return fmt.Errorf("batch set records: %w", err)
		}
	}

	b.count++

	if b.autoFlush && b.count >= b.maxSize {
		if err := b.Flush(); err != nil {
			return fmt.Errorf("auto flush: %w", err)
		}
	}

	return nil
}

// Flush commits all pending writes in the batch
func (b *BatchWriter) Flush() error {
	if b.count == 0 {
		return nil
	}

	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}

	b.store.logger.LogAttrs(context.Background(), slog.LevelDebug, "batch flushed",
		slog.Int("count", b.count),
	)

	b.count = 0
	b.batch = b.store.db.NewWriteBatch()

	return nil
}

// Cancel discards all pending writes in the batch
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
	b.count = 0
}

// Count returns the number of operations in the current batch
func (b *BatchWriter) Count() int {
	return b.count
}
