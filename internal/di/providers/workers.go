package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/action"
	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/batch"
	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/housekeeping"
	"github.com/neobackupapp/neobackup-server/internal/inventory"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/scanner"
	"github.com/neobackupapp/neobackup-server/internal/service"
	"github.com/neobackupapp/neobackup-server/internal/watcher"
	"github.com/neobackupapp/neobackup-server/internal/worker"
)

// historyKeep is how many completed batches the history retains.
const historyKeep = 1000

// WorkerPoolHandle wraps the work unit pool with Shutdownable.
type WorkerPoolHandle struct {
	*worker.Pool
}

// Shutdown implements do.Shutdownable.
func (h *WorkerPoolHandle) Shutdown() error {
	return h.Pool.Shutdown()
}

// ProvideWorkerPool provides the started work unit pool.
func ProvideWorkerPool(i do.Injector) (*WorkerPoolHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	dir := do.MustInvoke[*backup.Dir](i)
	inv := do.MustInvoke[*inventory.Source](i)
	reg := do.MustInvoke[*registry.Registry](i)
	hk := do.MustInvoke[*housekeeping.Housekeeper](i)

	exec := action.NewExecutor(dir, inv, reg, hk, log.Logger)
	pool := worker.New(exec, cfg.Scheduler.Workers, log.Logger)
	pool.Start()

	log.Info("Worker pool started", "workers", cfg.Scheduler.Workers)

	return &WorkerPoolHandle{Pool: pool}, nil
}

// ProvideBatchCoordinator provides the batch coordinator.
func ProvideBatchCoordinator(i do.Injector) (*batch.Coordinator, error) {
	log := do.MustInvoke[*logger.Logger](i)
	poolHandle := do.MustInvoke[*WorkerPoolHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return batch.New(poolHandle.Pool, storeHandle.Store, log.Logger), nil
}

// DispatcherHandle wraps the schedule dispatcher with Shutdownable.
type DispatcherHandle struct {
	*dispatcher.Dispatcher
}

// Shutdown implements do.Shutdownable.
func (h *DispatcherHandle) Shutdown() error {
	return h.Dispatcher.Shutdown()
}

// ProvideDispatcher provides the schedule dispatcher. Alarms are armed by
// Bootstrap once all services are wired.
func ProvideDispatcher(i do.Injector) (*DispatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	db := do.MustInvoke[*SQLiteHandle](i)
	inv := do.MustInvoke[*inventory.Source](i)
	reg := do.MustInvoke[*registry.Registry](i)
	dir := do.MustInvoke[*backup.Dir](i)
	batches := do.MustInvoke[*batch.Coordinator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	d := dispatcher.New(db.Store, inv, reg, dir, batches, sseHandle.Manager, dispatcher.Config{
		FakeScheduleDups:    cfg.Scheduler.FakeScheduleDups,
		FakeScheduleMinutes: cfg.Scheduler.FakeScheduleMinutes,
		OldBackupDays:       cfg.Backup.OldBackupDays,
		Location:            cfg.Scheduler.Location,
	}, log.Logger)

	if cfg.Scheduler.FakeScheduleDups > 0 || cfg.Scheduler.FakeScheduleMinutes > 0 {
		log.Warn("Debug scheduling enabled",
			"fake_dups", cfg.Scheduler.FakeScheduleDups,
			"fake_minutes", cfg.Scheduler.FakeScheduleMinutes,
		)
	}

	return &DispatcherHandle{Dispatcher: d}, nil
}

// ScheduleAlarms arms every enabled schedule. Should be called after the
// schedule seed is applied.
func ScheduleAlarms(i do.Injector) error {
	handle := do.MustInvoke[*DispatcherHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := handle.ScheduleAll(context.Background()); err != nil {
		return err
	}
	log.Info("Schedule alarms armed", "alarms", len(handle.Alarms()))
	return nil
}

// FileWatcherHandle wraps the backup root watcher with its context for lifecycle management.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	return h.Close()
}

// ProvideFileWatcher provides the backup root watcher. Changes made by
// other tools trigger a debounced rescan.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Backup.WatchRoot {
		log.Info("Backup root watching disabled by configuration")
		return &FileWatcherHandle{}, nil
	}

	fileScanner := do.MustInvoke[*scanner.Scanner](i)

	w, err := watcher.New(cfg.Backup.Root, log.Logger, watcher.Options{
		Debounce:     cfg.Backup.RescanDebounce,
		IgnoreHidden: true,
	})
	if err != nil {
		return nil, err
	}

	// Start in background
	wlog := log.WithField("path", cfg.Backup.Root)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		err := w.Run(ctx, func() {
			result, err := fileScanner.Rescan(ctx, scanner.ScanOptions{})
			if err != nil {
				if ctx.Err() == nil {
					wlog.WithError(err).Warn("Rescan after change failed")
				}
				return
			}
			wlog.Info("Rescan after change completed",
				"records", result.Records,
				"added", result.Added,
				"removed", result.Removed,
			)
		})
		if err != nil && ctx.Err() == nil {
			wlog.WithError(err).Error("File watcher error")
		}
	}()

	wlog.Info("File watcher started")

	return &FileWatcherHandle{
		Watcher: w,
		cancel:  cancel,
	}, nil
}

// BackgroundJobs runs the registry followers and the periodic history
// pruning until shutdown.
type BackgroundJobs struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *BackgroundJobs) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideBackgroundJobs starts the registry mirror, the SSE relay, the
// search follower and the history prune job.
func ProvideBackgroundJobs(i do.Injector) (*BackgroundJobs, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	reg := do.MustInvoke[*registry.Registry](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	searchService := do.MustInvoke[*service.SearchService](i)

	ctx, cancel := context.WithCancel(context.Background())

	go storeHandle.MirrorRegistry(ctx, reg)
	go service.RelayRegistryChanges(ctx, reg, sseHandle.Manager, log.Logger)
	go searchService.Follow(ctx)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if count, err := storeHandle.PruneBatches(ctx, historyKeep); err != nil {
					log.WithError(err).Warn("Batch history pruning failed")
				} else if count > 0 {
					log.Info("Batch history pruned", "deleted", count)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Background jobs started")

	return &BackgroundJobs{cancel: cancel}, nil
}
