package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/batch"
	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
	"github.com/neobackupapp/neobackup-server/internal/seed"
	"github.com/neobackupapp/neobackup-server/internal/service"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideInstanceService provides the instance service.
func ProvideInstanceService(i do.Injector) (*service.InstanceService, error) {
	db := do.MustInvoke[*SQLiteHandle](i)
	log := do.MustInvoke[*logger.Logger](i)
	cfg := do.MustInvoke[*config.Config](i)

	return service.NewInstanceService(db.Store, log.Logger, cfg), nil
}

// ProvideScheduleService provides the schedule service.
func ProvideScheduleService(i do.Injector) (*service.ScheduleService, error) {
	db := do.MustInvoke[*SQLiteHandle](i)
	dispatcherHandle := do.MustInvoke[*DispatcherHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewScheduleService(db.Store, dispatcherHandle.Dispatcher, validator, log.Logger), nil
}

// ApplyScheduleSeed imports the configured seed file into an empty
// schedule database.
func ApplyScheduleSeed(i do.Injector) error {
	cfg := do.MustInvoke[*config.Config](i)
	if cfg.Backup.SeedFile == "" {
		return nil
	}

	scheduleService := do.MustInvoke[*service.ScheduleService](i)
	log := do.MustInvoke[*logger.Logger](i)

	created, err := seed.ApplyFile(context.Background(), cfg.Backup.SeedFile, scheduleService, log.Logger)
	if err != nil {
		return err
	}
	if created > 0 {
		log.Info("Schedule seed applied", "path", cfg.Backup.SeedFile, "created", created)
	}
	return nil
}

// ProvideBackupService provides the backup service.
func ProvideBackupService(i do.Injector) (*service.BackupService, error) {
	reg := do.MustInvoke[*registry.Registry](i)
	inv := do.MustInvoke[*inventory.Source](i)
	dir := do.MustInvoke[*backup.Dir](i)
	fileScanner := do.MustInvoke[*scanner.Scanner](i)
	hk := do.MustInvoke[*housekeeping.Housekeeper](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBackupService(reg, inv, dir, fileScanner, hk, storeHandle.Store, log.Logger), nil
}

// ProvideExtrasService provides the package extras service.
func ProvideExtrasService(i do.Injector) (*service.ExtrasService, error) {
	db := do.MustInvoke[*SQLiteHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewExtrasService(db.Store, searchService, validator, log.Logger), nil
}

// ProvideExportService provides the schedule export service.
func ProvideExportService(i do.Injector) (*service.ExportService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db := do.MustInvoke[*SQLiteHandle](i)
	scheduleService := do.MustInvoke[*service.ScheduleService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewExportService(db.Store, scheduleService, filepath.Join(cfg.App.DataDir, "exports"), log.Logger), nil
}

// ProvideCommandHandler provides the command handler.
func ProvideCommandHandler(i do.Injector) (*command.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	db := do.MustInvoke[*SQLiteHandle](i)
	dispatcherHandle := do.MustInvoke[*DispatcherHandle](i)
	batches := do.MustInvoke[*batch.Coordinator](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Server.EnableDebugCommands {
		log.Warn("Debug commands enabled")
	}

	return command.NewHandler(
		db.Store,
		dispatcherHandle.Dispatcher,
		batches,
		cfg.Server.EnableDebugCommands,
		cfg.Scheduler.Location,
		log.Logger,
	), nil
}
