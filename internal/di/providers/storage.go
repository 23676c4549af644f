package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
)

// ProvideBackupDir provides the backup root.
func ProvideBackupDir(i do.Injector) (*backup.Dir, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dir := backup.NewDir(cfg.Backup.Root, log.Logger)
	if err := dir.Check(); err != nil {
		// Non-fatal: runs report NoWork until the location comes back.
		log.WithError(err).Warn("Backup root not accessible", "path", cfg.Backup.Root)
	}
	return dir, nil
}

// ProvideInventory provides the installed package inventory.
func ProvideInventory(i do.Injector) (*inventory.Source, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	src, err := inventory.NewSource(cfg.Backup.InventoryFile, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Package inventory loaded",
		"path", cfg.Backup.InventoryFile,
		"packages", len(src.Packages()),
	)
	return src, nil
}

// ProvideRegistry provides the backup registry, restored from the mirror
// in the registry store.
func ProvideRegistry(i do.Injector) (*registry.Registry, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	reg := registry.New(log.Logger)

	records, err := storeHandle.LoadRecords(context.Background())
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		reg.ReplaceAll(records)
	}

	log.Info("Backup registry restored",
		"records", reg.Count(),
		"packages", len(reg.Packages()),
	)
	return reg, nil
}

// ProvideHousekeeper provides the revision housekeeper.
func ProvideHousekeeper(i do.Injector) (*housekeeping.Housekeeper, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	dir := do.MustInvoke[*backup.Dir](i)
	reg := do.MustInvoke[*registry.Registry](i)

	return housekeeping.New(dir, reg, housekeeping.Policy{
		Keep:           cfg.Backup.NumRevisions,
		SkipPersistent: cfg.Backup.SkipPersistentInHousekeeping,
	}, log.Logger), nil
}
