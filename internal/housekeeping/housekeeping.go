// Package housekeeping trims old backup revisions of a package.
package housekeeping

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Policy configures how many revisions survive.
type Policy struct {
	// Keep is the number of newest revisions to retain. Zero keeps everything.
	Keep int
	// SkipPersistent excludes persistent backups from deletion and from the count.
	SkipPersistent bool
}

// Plan splits records into survivors and deletions. Both are newest first.
func Plan(records []domain.BackupRecord, p Policy) (keep, remove []domain.BackupRecord) {
	sorted := slices.Clone(records)
	domain.SortNewestFirst(sorted)
	if p.Keep <= 0 {
		return sorted, nil
	}

	var counted int
	for _, rec := range sorted {
		if p.SkipPersistent && rec.Persistent {
			keep = append(keep, rec)
			continue
		}
		if counted < p.Keep {
			keep = append(keep, rec)
			counted++
			continue
		}
		remove = append(remove, rec)
	}
	return keep, remove
}

// Registry is the part of the backup registry housekeeping updates.
type Registry interface {
	Update(pkg string, fn func([]domain.BackupRecord) ([]domain.BackupRecord, bool)) bool
	Put(rec domain.BackupRecord)
}

// Housekeeper applies a Policy to the backup root and the registry.
type Housekeeper struct {
	dir      *backup.Dir
	registry Registry
	policy   Policy
	logger   *slog.Logger
}

// New creates a Housekeeper.
func New(dir *backup.Dir, registry Registry, policy Policy, logger *slog.Logger) *Housekeeper {
	return &Housekeeper{dir: dir, registry: registry, policy: policy, logger: logger}
}

// Policy returns the configured policy.
func (h *Housekeeper) Policy() Policy {
	return h.policy
}

// Apply removes surplus revisions of pkg. The revisions are planned and
// dropped from the registry in one atomic update, so records added
// meanwhile are never lost. Files are deleted afterwards; a record whose
// files could not be deleted is put back. Records whose files are already
// gone count as removed.
func (h *Housekeeper) Apply(pkg string) ([]domain.BackupRecord, error) {
	var remove []domain.BackupRecord
	h.registry.Update(pkg, func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
		keep, rm := Plan(list, h.policy)
		remove = rm
		return keep, len(rm) > 0
	})
	if len(remove) == 0 {
		return nil, nil
	}

	var (
		removed []domain.BackupRecord
		errs    []error
	)
	for _, rec := range remove {
		err := h.dir.Delete(rec)
		switch {
		case err == nil, errors.Is(err, backup.ErrBackupNotFound):
			removed = append(removed, rec)
		default:
			errs = append(errs, fmt.Errorf("delete %s: %w", rec.Key(), err))
			h.registry.Put(rec)
		}
	}

	h.logger.Info("housekeeping removed old revisions",
		slog.String("package", pkg),
		slog.Int("removed", len(removed)),
		slog.Int("failed", len(errs)),
	)
	return removed, errors.Join(errs...)
}
