// Package di provides dependency injection configuration for the NeoBackup scheduler.
package di

import (
	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/auth"
	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/batch"
	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/di/providers"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
	"github.com/neobackupapp/neobackup-server/internal/service"
	"github.com/neobackupapp/neobackup-server/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Database layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideSQLite)
	do.Provide(injector, providers.ProvideStore)

	// Storage layer
	do.Provide(injector, providers.ProvideBackupDir)
	do.Provide(injector, providers.ProvideInventory)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideHousekeeper)

	// Scanner layer
	do.Provide(injector, providers.ProvideScanner)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchService)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideCommandLimiter)

	// Scheduling
	do.Provide(injector, providers.ProvideWorkerPool)
	do.Provide(injector, providers.ProvideBatchCoordinator)
	do.Provide(injector, providers.ProvideDispatcher)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideInstanceService)
	do.Provide(injector, providers.ProvideScheduleService)
	do.Provide(injector, providers.ProvideBackupService)
	do.Provide(injector, providers.ProvideExtrasService)
	do.Provide(injector, providers.ProvideExportService)
	do.Provide(injector, providers.ProvideCommandHandler)

	// Workers
	do.Provide(injector, providers.ProvideBackgroundJobs)
	do.Provide(injector, providers.ProvideFileWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)
	do.Provide(injector, providers.ProvideMDNSService)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.SQLiteHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*backup.Dir](injector)
	_ = do.MustInvoke[*inventory.Source](injector)
	_ = do.MustInvoke[*registry.Registry](injector)
	_ = do.MustInvoke[*housekeeping.Housekeeper](injector)
	_ = do.MustInvoke[*scanner.Scanner](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*service.SearchService](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*providers.CommandLimiterHandle](injector)

	// Scheduling
	_ = do.MustInvoke[*providers.WorkerPoolHandle](injector)
	_ = do.MustInvoke[*batch.Coordinator](injector)
	_ = do.MustInvoke[*providers.DispatcherHandle](injector)

	// Business services
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*service.InstanceService](injector)
	_ = do.MustInvoke[*service.ScheduleService](injector)
	_ = do.MustInvoke[*service.BackupService](injector)
	_ = do.MustInvoke[*service.ExtrasService](injector)
	_ = do.MustInvoke[*service.ExportService](injector)
	_ = do.MustInvoke[*command.Handler](injector)

	// Workers: the mirror must be running before the initial scan fills
	// the registry.
	_ = do.MustInvoke[*providers.BackgroundJobs](injector)
	_ = do.MustInvoke[*providers.FileWatcherHandle](injector)

	// Seed an empty schedule database, then arm alarms
	if err := providers.ApplyScheduleSeed(injector); err != nil {
		return err
	}
	if err := providers.ScheduleAlarms(injector); err != nil {
		return err
	}

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)
	_ = do.MustInvoke[*providers.MDNSServiceHandle](injector)

	// Trigger search reindex if needed
	providers.TriggerSearchReindexIfNeeded(injector)

	// Run initial scan if the registry is empty
	go providers.RunInitialScan(injector)

	return nil
}
