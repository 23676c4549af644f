package dispatcher

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/id"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/workunit"
)

// ManualRequest is a user-initiated batch over an explicit package list.
type ManualRequest struct {
	Packages  []string
	Mode      domain.Mode
	Direction domain.Direction
}

// RunManual starts a batch outside any schedule. Restores need an existing
// backup of every package. The batch holds the wake lock until it completes
// and never touches schedule alarms.
func (d *Dispatcher) RunManual(ctx context.Context, req ManualRequest) (Result, error) {
	runID := id.NewRunID()
	res := Result{RunID: runID, Outcome: OutcomeFailed}

	pkgs := make([]string, 0, len(req.Packages))
	for _, p := range req.Packages {
		p = strings.TrimSpace(p)
		if p == "" || slices.Contains(pkgs, p) {
			continue
		}
		pkgs = append(pkgs, p)
	}
	if len(pkgs) == 0 {
		res.Outcome = OutcomeNoWork
		return res, domainerrors.EmptySelectionf("no packages given")
	}
	if !req.Mode.Valid() {
		return res, domainerrors.Validationf("invalid mode %d", req.Mode)
	}
	if req.Direction == domain.DirectionRestore {
		var missing []string
		for _, p := range pkgs {
			if _, ok := d.registry.Latest(p); !ok {
				missing = append(missing, p)
			}
		}
		if len(missing) > 0 {
			return res, domainerrors.Validationf("no backup to restore for %s", strings.Join(missing, ", "))
		}
	}
	if err := d.storage.Check(); err != nil {
		return res, domainerrors.StorageUnavailable(err, "backup location not accessible")
	}

	batchName := domain.BatchName("Manual "+string(req.Direction), d.now())
	units, err := workunit.BuildManual(pkgs, req.Mode, req.Direction, batchName, id.NextNotificationID())
	if err != nil {
		return res, domainerrors.Validation(err.Error())
	}

	log := logger.ForBatch(d.logger, batchName).With(
		slog.String("run_id", runID),
		slog.String("direction", string(req.Direction)),
	)

	release := d.wake.Acquire()
	if _, err := d.batches.Run(ctx, batchName, 0, units, func(r domain.BatchResult) {
		release()
		log.Info("manual batch finished",
			slog.Bool("success", r.Success),
			slog.Int("finished", r.Finished),
			slog.Bool("cancelled", r.Cancelled))
	}); err != nil {
		release()
		log.Error("failed to start manual batch", slog.String("error", err.Error()))
		return res, err
	}

	log.Info("manual batch started", slog.Int("packages", len(units)))
	res.Outcome = OutcomeRunning
	res.Batch = batchName
	res.Packages = len(units)
	return res, nil
}
