package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
)

// ProvideScanner provides the backup root scanner.
func ProvideScanner(i do.Injector) (*scanner.Scanner, error) {
	dir := do.MustInvoke[*backup.Dir](i)
	reg := do.MustInvoke[*registry.Registry](i)
	log := do.MustInvoke[*logger.Logger](i)

	return scanner.NewScanner(dir, reg, log.Logger), nil
}

// RunInitialScan rebuilds the registry from the backup root when the
// restored registry is empty. Should be called after the registry mirror
// is running.
func RunInitialScan(i do.Injector) {
	reg := do.MustInvoke[*registry.Registry](i)
	if reg.Count() > 0 {
		return
	}

	fileScanner := do.MustInvoke[*scanner.Scanner](i)
	log := do.MustInvoke[*logger.Logger](i)

	log.Info("Empty registry, starting initial scan")

	result, err := fileScanner.Rescan(context.Background(), scanner.ScanOptions{})
	if err != nil {
		log.WithError(err).Error("Initial scan failed")
		return
	}
	log.Info("Initial scan completed",
		"packages", result.Packages,
		"records", result.Records,
		"errors", result.Errors,
	)
}
