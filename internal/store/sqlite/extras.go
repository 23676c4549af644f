package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/store"
)

const extrasColumns = `package_name, custom_tags, note`

func scanExtras(scanner interface{ Scan(dest ...any) error }) (*domain.AppExtras, error) {
	var (
		e    domain.AppExtras
		tags string
	)
	if err := scanner.Scan(&e.PackageName, &tags, &e.Note); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &e.CustomTags); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetExtras returns the annotations of one package.
// Returns store.ErrNotFound if none are stored.
func (s *Store) GetExtras(ctx context.Context, pkg string) (*domain.AppExtras, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+extrasColumns+` FROM app_extras WHERE package_name = ?`, pkg)

	e, err := scanExtras(row)
	if err == sql.ErrNoRows {
		return nil, store.NotFound("extras", pkg)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListExtras returns every stored annotation keyed by package name.
func (s *Store) ListExtras(ctx context.Context) (map[string]domain.AppExtras, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+extrasColumns+` FROM app_extras ORDER BY package_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.AppExtras)
	for rows.Next() {
		e, err := scanExtras(rows)
		if err != nil {
			return nil, err
		}
		out[e.PackageName] = *e
	}
	return out, rows.Err()
}

// UpsertExtras creates or replaces the annotations of a package.
func (s *Store) UpsertExtras(ctx context.Context, e *domain.AppExtras) error {
	tags := e.CustomTags
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO app_extras (package_name, custom_tags, note, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(package_name) DO UPDATE SET
			custom_tags = excluded.custom_tags,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		e.PackageName, string(data), e.Note, formatTime(time.Now()))
	return err
}

// DeleteExtras removes the annotations of a package.
// Returns store.ErrNotFound if none are stored.
func (s *Store) DeleteExtras(ctx context.Context, pkg string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_extras WHERE package_name = ?`, pkg)
	if err != nil {
		return err
	}
	return rowsAffectedOrNotFound(res, "extras", pkg)
}
