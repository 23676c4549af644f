package api

import (
	"context"

	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/service"
)

// Services groups the business logic used by the API server.
type Services struct {
	Instance *service.InstanceService
	Schedule *service.ScheduleService
	Backup   *service.BackupService
	Extras   *service.ExtrasService
	Search   *service.SearchService // nil disables search routes' index checks
	Export   *service.ExportService
	Commands *command.Handler
	Status   StatusSource
	Manual   ManualRunner // nil disables POST /api/v1/batches
}

// ManualRunner starts batches outside any schedule.
type ManualRunner interface {
	RunManual(ctx context.Context, req dispatcher.ManualRequest) (dispatcher.Result, error)
}

// StatusSource reports what the scheduler is doing right now.
type StatusSource interface {
	Running() []dispatcher.Run
	Alarms() []dispatcher.Alarm
	WakeLockHeld() bool
	ActiveBatches() []domain.BatchResult
}
