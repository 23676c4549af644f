package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/neobackupapp/neobackup-server/internal/store"
)

// instanceIDKey holds the identity advertised over mDNS and embedded in
// exports.
const instanceIDKey = "instance_id"

// GetInstanceKey retrieves a value from the instance key-value table.
// Returns store.ErrNotFound if the key does not exist.
func (s *Store) GetInstanceKey(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM instance WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", store.NotFound("instance key", key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetInstanceKey sets a value in the instance key-value table.
// Creates the key if it does not exist, or replaces the existing value.
func (s *Store) SetInstanceKey(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO instance (key, value) VALUES (?, ?)`, key, value)
	return err
}

// InstanceID returns the server identity, creating it on first use.
func (s *Store) InstanceID(ctx context.Context) (string, error) {
	id, err := s.GetInstanceKey(ctx, instanceIDKey)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	// INSERT OR IGNORE keeps the first writer's value on a race.
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO instance (key, value) VALUES (?, ?)`,
		instanceIDKey, uuid.NewString()); err != nil {
		return "", err
	}
	return s.GetInstanceKey(ctx, instanceIDKey)
}
