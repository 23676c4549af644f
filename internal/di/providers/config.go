// Package providers contains dependency injection providers for the NeoBackup scheduler.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting NeoBackup Scheduler",
		"version", service.Version,
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_dir", cfg.App.DataDir,
		"backup_root", cfg.Backup.Root,
		"timezone", cfg.Scheduler.Location.String(),
	)

	return log, nil
}
