package sqlite

import (
	"context"
	"slices"
)

// GetBlocklist returns the packages on a blocklist, sorted. listID is a
// schedule ID or domain.GlobalBlocklistID. An unknown list is empty.
func (s *Store) GetBlocklist(ctx context.Context, listID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT package_name FROM blocklists WHERE list_id = ? ORDER BY package_name ASC`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pkgs := []string{}
	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, rows.Err()
}

// SetBlocklist replaces a blocklist in one transaction.
func (s *Store) SetBlocklist(ctx context.Context, listID int64, pkgs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM blocklists WHERE list_id = ?`, listID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO blocklists (list_id, package_name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, pkg := range slices.Compact(slices.Sorted(slices.Values(pkgs))) {
		if pkg == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, listID, pkg); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddToBlocklist adds one package. Adding a listed package is a no-op.
func (s *Store) AddToBlocklist(ctx context.Context, listID int64, pkg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocklists (list_id, package_name) VALUES (?, ?)`, listID, pkg)
	return err
}

// RemoveFromBlocklist removes one package and reports whether it was listed.
func (s *Store) RemoveFromBlocklist(ctx context.Context, listID int64, pkg string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM blocklists WHERE list_id = ? AND package_name = ?`, listID, pkg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
