package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
	"github.com/neobackupapp/neobackup-server/internal/store"
	"github.com/neobackupapp/neobackup-server/internal/util"
)

// PackageSummary is one row of the package listing.
type PackageSummary struct {
	Name         string    `json:"name"`
	Label        string    `json:"label"`
	Installed    bool      `json:"installed"`
	System       bool      `json:"system"`
	BackupCount  int       `json:"backup_count"`
	TotalSize    int64     `json:"total_size"`
	LatestBackup time.Time `json:"latest_backup,omitzero"`
}

// RecordPatch lists the metadata a rewrite may correct. Nil fields are
// left unchanged.
type RecordPatch struct {
	PackageLabel *string
	Persistent   *bool
	VersionCode  *int64
	VersionName  *string
}

func (p RecordPatch) apply(rec domain.BackupRecord) domain.BackupRecord {
	if p.PackageLabel != nil {
		rec.PackageLabel = *p.PackageLabel
	}
	if p.Persistent != nil {
		rec.Persistent = *p.Persistent
	}
	if p.VersionCode != nil {
		rec.VersionCode = *p.VersionCode
	}
	if p.VersionName != nil {
		rec.VersionName = *p.VersionName
	}
	return rec
}

// BackupService exposes the backup registry, the backup root and batch
// history.
type BackupService struct {
	registry    *registry.Registry
	inventory   PackageSource
	dir         *backup.Dir
	scanner     *scanner.Scanner
	housekeeper *housekeeping.Housekeeper
	history     *store.Store
	logger      *slog.Logger
}

// NewBackupService creates a new backup service.
func NewBackupService(
	registry *registry.Registry,
	inventory PackageSource,
	dir *backup.Dir,
	scanner *scanner.Scanner,
	housekeeper *housekeeping.Housekeeper,
	history *store.Store,
	logger *slog.Logger,
) *BackupService {
	return &BackupService{
		registry:    registry,
		inventory:   inventory,
		dir:         dir,
		scanner:     scanner,
		housekeeper: housekeeper,
		history:     history,
		logger:      logger,
	}
}

// ListPackages returns installed and backed-up packages ordered by label.
func (s *BackupService) ListPackages(_ context.Context) []PackageSummary {
	all := s.registry.GetAll()
	byName := make(map[string]*PackageSummary, len(all))

	for _, p := range s.inventory.Packages() {
		byName[p.Name] = &PackageSummary{
			Name:      p.Name,
			Label:     p.DisplayLabel(),
			Installed: p.IsInstalled,
			System:    p.IsSystem,
		}
	}
	for name, records := range all {
		sum, ok := byName[name]
		if !ok {
			sum = &PackageSummary{Name: name, Label: name}
			byName[name] = sum
		}
		sum.BackupCount = len(records)
		for _, r := range records {
			sum.TotalSize += r.Size
		}
		if latest, ok := domain.Latest(records); ok {
			sum.LatestBackup = latest.BackupDate
			if sum.Label == name && latest.PackageLabel != "" {
				sum.Label = latest.PackageLabel
			}
		}
	}

	out := make([]PackageSummary, 0, len(byName))
	for _, sum := range byName {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b PackageSummary) int { return cmp.Compare(a.Name, b.Name) })
	util.SortByLabel(out, func(p PackageSummary) string { return p.Label })
	return out
}

// GetRecords returns the backups of a package, newest first.
func (s *BackupService) GetRecords(_ context.Context, pkg string) ([]domain.BackupRecord, error) {
	records := s.registry.Get(pkg)
	if len(records) == 0 {
		return nil, domainerrors.NotFoundf("no backups of %s", pkg)
	}
	records = slices.Clone(records)
	domain.SortNewestFirst(records)
	return records, nil
}

// DeleteRecord deletes one backup from the backup root and the registry.
// The record leaves the registry first; it is put back when its files
// cannot be deleted.
func (s *BackupService) DeleteRecord(_ context.Context, pkg string, date time.Time) error {
	rec, found := s.registry.Take(pkg, date)
	if !found {
		return notFoundRecord(pkg, date)
	}
	if err := s.dir.Delete(rec); err != nil && !errors.Is(err, backup.ErrBackupNotFound) {
		s.registry.Put(rec)
		return domainerrors.StorageUnavailable(err, "delete backup files")
	}

	s.logger.Info("backup deleted",
		slog.String("package", pkg),
		slog.Time("backup_date", rec.BackupDate))
	return nil
}

// RewriteRecord corrects the metadata of an existing backup without
// re-running it. The identity (package, date) never changes. The patch is
// applied to the registry atomically and rolled back if the properties
// file cannot be written.
func (s *BackupService) RewriteRecord(_ context.Context, pkg string, date time.Time, patch RecordPatch) (*domain.BackupRecord, error) {
	var before, rec domain.BackupRecord
	found := s.registry.Update(pkg, func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
		i := indexOfDate(list, date)
		if i < 0 {
			return nil, false
		}
		before = list[i]
		rec = patch.apply(before)
		list[i] = rec
		return list, true
	})
	if !found {
		return nil, notFoundRecord(pkg, date)
	}

	if _, err := s.dir.Write(rec); err != nil {
		s.registry.Update(pkg, func(list []domain.BackupRecord) ([]domain.BackupRecord, bool) {
			i := indexOfDate(list, date)
			if i < 0 || list[i] != rec {
				return nil, false
			}
			list[i] = before
			return list, true
		})
		return nil, domainerrors.StorageUnavailable(err, "rewrite backup properties")
	}

	s.logger.Info("backup rewritten",
		slog.String("package", pkg),
		slog.Time("backup_date", rec.BackupDate),
		slog.Bool("persistent", rec.Persistent))
	return &rec, nil
}

// Rescan rebuilds the registry from the backup root.
func (s *BackupService) Rescan(ctx context.Context) (*scanner.ScanResult, error) {
	return s.scanner.Rescan(ctx, scanner.ScanOptions{})
}

// Housekeep applies the revision policy to pkg, or to every package when
// pkg is empty. It returns the removed records.
func (s *BackupService) Housekeep(ctx context.Context, pkg string) ([]domain.BackupRecord, error) {
	pkgs := []string{pkg}
	if pkg == "" {
		pkgs = s.registry.Packages()
	}

	var (
		removed []domain.BackupRecord
		errs    []error
	)
	for _, p := range pkgs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		r, err := s.housekeeper.Apply(p)
		removed = append(removed, r...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	if len(removed) > 0 {
		s.logger.Info("housekeeping removed backups",
			slog.Int("removed", len(removed)),
			slog.Int("packages", len(pkgs)))
	}
	return removed, errors.Join(errs...)
}

// ListBatches pages through completed batches, newest first. scheduleID 0
// lists all schedules.
func (s *BackupService) ListBatches(ctx context.Context, scheduleID int64, params store.PaginationParams) (*store.PaginatedResult[domain.BatchResult], error) {
	return s.history.ListBatches(ctx, scheduleID, params)
}

// GetBatch returns a completed batch.
func (s *BackupService) GetBatch(ctx context.Context, name string) (*domain.BatchResult, error) {
	return s.history.GetBatch(ctx, name)
}

func indexOfDate(list []domain.BackupRecord, date time.Time) int {
	return slices.IndexFunc(list, func(r domain.BackupRecord) bool {
		return r.BackupDate.Equal(date)
	})
}

func notFoundRecord(pkg string, date time.Time) error {
	return domainerrors.NotFoundf("backup of %s at %s not found", pkg, date.UTC().Format(domain.BackupDateLayout))
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
