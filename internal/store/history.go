package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// SaveBatch stores a completed batch. Saving the same name again replaces it.
func (s *Store) SaveBatch(ctx context.Context, result domain.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result.Name == "" {
		return fmt.Errorf("batch name is required: %w", ErrInvalidInput)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	key := buildKey(batchPrefix, result.Name)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(key); err == nil {
			var old domain.BatchResult
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &old) }); err == nil {
				if err := txn.Delete([]byte(batchTimeKey(old.CompletedAt, old.Name))); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(batchTimeKey(result.CompletedAt, result.Name)), []byte(result.Name))
	})
}

// GetBatch returns a stored batch.
func (s *Store) GetBatch(ctx context.Context, name string) (*domain.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(batchPrefix, name)
	defer releaseKey(key)

	var result domain.BatchResult
	if err := s.get(key, &result); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, NotFound("batch", name)
		}
		return nil, err
	}
	return &result, nil
}

// ListBatches returns completed batches, newest first. scheduleID 0 lists
// every schedule including manual batches.
func (s *Store) ListBatches(ctx context.Context, scheduleID int64, params PaginationParams) (*PaginatedResult[domain.BatchResult], error) {
	params.Validate()

	cursorKey, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	result := &PaginatedResult[domain.BatchResult]{Items: []domain.BatchResult{}}
	prefix := []byte(batchTimePrefix)

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(batchTimePrefix), 0xFF)
		if cursorKey != "" {
			seek = []byte(cursorKey)
		}

		var lastKey string
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			if key == cursorKey {
				continue
			}

			name, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := txn.Get([]byte(batchPrefix + string(name)))
			if err != nil {
				s.logger.Warn("dangling batch index entry", slog.String("key", key))
				continue
			}
			var b domain.BatchResult
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &b) }); err != nil {
				return err
			}
			if scheduleID != 0 && b.ScheduleID != scheduleID {
				continue
			}

			if len(result.Items) == params.Limit {
				result.HasMore = true
				break
			}
			result.Items = append(result.Items, b)
			lastKey = key
		}

		if result.HasMore {
			result.NextCursor = EncodeCursor(lastKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PruneBatches keeps the newest keep batches and deletes the rest.
func (s *Store) PruneBatches(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(batchTimePrefix)
		n := 0
		for it.Seek(append([]byte(batchTimePrefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
			if n <= keep {
				continue
			}
			name, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			stale = append(stale, it.Item().KeyCopy(nil), []byte(batchPrefix+string(name)))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("prune batches: %w", err)
	}

	removed := len(stale) / 2
	s.logger.Debug("pruned batch history", slog.Int("removed", removed), slog.Int("kept", keep))
	return removed, nil
}
