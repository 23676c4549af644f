package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/registry"
)

// recordFlushSize bounds one WriteBatch when mirroring a full registry.
const recordFlushSize = 500

// SaveRecords replaces the stored records of one package. An empty list
// removes the package.
func (s *Store) SaveRecords(ctx context.Context, pkg string, records []domain.BackupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := buildKey(recordPrefix, pkg)
	defer releaseKey(key)

	if len(records) == 0 {
		return s.db.Update(func(txn *badger.Txn) error {
			err := txn.Delete(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		})
	}
	return s.set(key, records)
}

// GetRecords returns the stored records of one package.
func (s *Store) GetRecords(ctx context.Context, pkg string) ([]domain.BackupRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(recordPrefix, pkg)
	defer releaseKey(key)

	var records []domain.BackupRecord
	if err := s.get(key, &records); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// ReplaceRecords rewrites the whole record mirror.
func (s *Store) ReplaceRecords(ctx context.Context, byPkg map[string][]domain.BackupRecord) error {
	if _, err := s.deletePrefix([]byte(recordPrefix)); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	w := s.NewBatchWriter(recordFlushSize)
	for _, pkg := range slices.Sorted(maps.Keys(byPkg)) {
		if err := ctx.Err(); err != nil {
			w.Cancel()
			return err
		}
		if err := w.PutRecords(pkg, byPkg[pkg]); err != nil {
			w.Cancel()
			return err
		}
	}
	return w.Flush()
}

// LoadRecords returns every stored record.
func (s *Store) LoadRecords(ctx context.Context) ([]domain.BackupRecord, error) {
	var out []domain.BackupRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var records []domain.BackupRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &records)
			})
			if err != nil {
				s.logger.Warn("skipping unreadable record entry",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, records...)
		}
		return nil
	})
	return out, err
}

// RegistrySource is the registry as seen by the mirror.
type RegistrySource interface {
	Subscribe(ctx context.Context) <-chan registry.Change
	Get(pkg string) []domain.BackupRecord
	GetAll() map[string][]domain.BackupRecord
}

// MirrorRegistry writes every committed registry change to the store until
// ctx is done. Run it in a goroutine.
func (s *Store) MirrorRegistry(ctx context.Context, src RegistrySource) {
	s.logger.Info("registry mirror started")
	for c := range src.Subscribe(ctx) {
		if err := s.applyChange(ctx, src, c); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("failed to mirror registry change",
				slog.Uint64("version", c.Version),
				slog.String("error", err.Error()))
		}
	}
	s.logger.Info("registry mirror stopped")
}

func (s *Store) applyChange(ctx context.Context, src RegistrySource, c registry.Change) error {
	if c.All {
		return s.ReplaceRecords(ctx, src.GetAll())
	}
	for _, pkg := range c.Packages {
		if err := s.SaveRecords(ctx, pkg, src.Get(pkg)); err != nil {
			return fmt.Errorf("package %s: %w", pkg, err)
		}
	}
	return nil
}
