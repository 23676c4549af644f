package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/neobackupapp/neobackup-server/internal/config"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/store/sqlite"
)

// Version is the server version, set at build time with
// -ldflags "-X github.com/neobackupapp/neobackup-server/internal/service.Version=...".
var Version = "dev"

// InstanceService describes this server instance.
type InstanceService struct {
	store     *sqlite.Store
	logger    *slog.Logger
	config    *config.Config
	startedAt time.Time
}

// NewInstanceService creates a new instance service.
func NewInstanceService(store *sqlite.Store, logger *slog.Logger, config *config.Config) *InstanceService {
	return &InstanceService{
		store:     store,
		logger:    logger,
		config:    config,
		startedAt: time.Now(),
	}
}

// GetInstance returns the instance description. The ID is created on first
// use and stays stable across restarts.
func (s *InstanceService) GetInstance(ctx context.Context) (*domain.Instance, error) {
	id, err := s.store.InstanceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance id: %w", err)
	}

	return &domain.Instance{
		ID:         id,
		Name:       s.Name(),
		Version:    Version,
		BackupRoot: s.config.Backup.Root,
		StartedAt:  s.startedAt,
	}, nil
}

// Name returns the configured instance name, falling back to the hostname.
func (s *InstanceService) Name() string {
	if s.config.Discovery.Name != "" {
		return s.config.Discovery.Name
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "neobackup"
}
