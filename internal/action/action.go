// Package action performs the per-package backup and restore work.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// Inventory resolves installed packages.
type Inventory interface {
	Lookup(name string) (domain.Package, bool)
}

// Registry is the part of the backup registry the executor touches.
type Registry interface {
	Put(rec domain.BackupRecord)
	Latest(pkg string) (domain.BackupRecord, bool)
}

// Housekeeper trims old revisions after a new backup lands.
type Housekeeper interface {
	Apply(pkg string) ([]domain.BackupRecord, error)
}

// Executor records backups in the backup root and the registry.
type Executor struct {
	dir         *backup.Dir
	inventory   Inventory
	registry    Registry
	housekeeper Housekeeper
	logger      *slog.Logger
	now         func() time.Time
}

// NewExecutor creates an Executor. housekeeper may be nil.
func NewExecutor(dir *backup.Dir, inv Inventory, reg Registry, hk Housekeeper, logger *slog.Logger) *Executor {
	return &Executor{
		dir:         dir,
		inventory:   inv,
		registry:    reg,
		housekeeper: hk,
		logger:      logger,
		now:         time.Now,
	}
}

// Execute runs one work unit and returns the package label.
func (e *Executor) Execute(ctx context.Context, unit domain.WorkUnit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch unit.Direction {
	case domain.DirectionBackup:
		return e.backup(unit)
	case domain.DirectionRestore:
		return e.restore(unit)
	default:
		return "", fmt.Errorf("unknown direction %q", unit.Direction)
	}
}

func (e *Executor) backup(unit domain.WorkUnit) (string, error) {
	pkg, ok := e.inventory.Lookup(unit.PackageName)
	if !ok || !pkg.IsInstalled {
		return "", fmt.Errorf("package %s is not installed", unit.PackageName)
	}
	label := pkg.DisplayLabel()
	if !unit.Mode.Valid() {
		return label, fmt.Errorf("nothing to back up: mode %s", unit.Mode)
	}

	rec := domain.BackupRecord{
		PackageName:             pkg.Name,
		PackageLabel:            pkg.Label,
		BackupDate:              e.now().UTC().Truncate(time.Millisecond),
		HasAPK:                  unit.Mode.Has(domain.ModeAPK),
		HasAppData:              unit.Mode.Has(domain.ModeData),
		HasDevicesProtectedData: unit.Mode.Has(domain.ModeDataDE),
		HasExternalData:         unit.Mode.Has(domain.ModeDataExt),
		HasOBBData:              unit.Mode.Has(domain.ModeDataOBB),
		HasMediaData:            unit.Mode.Has(domain.ModeDataMedia),
		VersionCode:             pkg.VersionCode,
		VersionName:             pkg.VersionName,
	}

	if err := e.dir.Check(); err != nil {
		return label, err
	}
	if err := os.MkdirAll(e.dir.DataDir(rec), 0o755); err != nil {
		return label, fmt.Errorf("create backup dir: %w", err)
	}
	path, err := e.dir.Write(rec)
	if err != nil {
		_ = os.RemoveAll(e.dir.DataDir(rec))
		return label, err
	}
	e.registry.Put(rec)

	e.logger.Info("backup written",
		slog.String("package", rec.PackageName),
		slog.String("batch", unit.BatchName),
		slog.String("mode", unit.Mode.String()),
		slog.String("path", path),
	)

	if e.housekeeper != nil {
		if _, err := e.housekeeper.Apply(rec.PackageName); err != nil {
			// The backup itself succeeded.
			e.logger.Warn("housekeeping failed",
				slog.String("package", rec.PackageName),
				slog.String("error", err.Error()),
			)
		}
	}
	return label, nil
}

func (e *Executor) restore(unit domain.WorkUnit) (string, error) {
	latest, ok := e.registry.Latest(unit.PackageName)
	if !ok {
		return unit.PackageName, fmt.Errorf("no backup found for %s", unit.PackageName)
	}
	label := latest.PackageLabel
	if label == "" {
		label = latest.PackageName
	}
	if missing := unit.Mode &^ latest.Mode(); missing != 0 {
		return label, fmt.Errorf("backup of %s lacks %s", unit.PackageName, missing)
	}

	e.logger.Info("restore prepared",
		slog.String("package", unit.PackageName),
		slog.String("batch", unit.BatchName),
		slog.Time("backup_date", latest.BackupDate),
	)
	return label, nil
}
