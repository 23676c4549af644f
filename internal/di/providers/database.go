package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/sse"
	"github.com/neobackupapp/neobackup-server/internal/store"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// SQLiteHandle wraps the schedule database with shutdown capability.
type SQLiteHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *SQLiteHandle) Shutdown() error {
	return h.Close()
}

// ProvideSQLite provides the schedule database. Migrations run on open.
func ProvideSQLite(i do.Injector) (*SQLiteHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.App.DataDir, "schedules.db")
	db, err := sqlite.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Schedule database initialized", "path", dbPath)

	return &SQLiteHandle{Store: db}, nil
}

// StoreHandle wraps the registry mirror and batch history with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the Badger store holding the registry mirror and
// batch history.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.App.DataDir, "registry")
	db, err := store.New(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Registry store initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
