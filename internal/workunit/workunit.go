// Package workunit builds the immutable work descriptions a batch submits.
package workunit

import (
	"fmt"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/id"
)

// Build creates one backup unit per selected package for a scheduled run.
// Scheduled runs only ever back up.
func Build(selected []string, schedule *domain.Schedule, batchName string, notificationID int) ([]domain.WorkUnit, error) {
	return build(selected, schedule.Mode, domain.DirectionBackup, batchName, notificationID)
}

// BuildManual creates units for a user-initiated batch in either direction.
func BuildManual(selected []string, mode domain.Mode, dir domain.Direction, batchName string, notificationID int) ([]domain.WorkUnit, error) {
	if dir != domain.DirectionBackup && dir != domain.DirectionRestore {
		return nil, fmt.Errorf("unknown direction %q", dir)
	}
	return build(selected, mode, dir, batchName, notificationID)
}

func build(selected []string, mode domain.Mode, dir domain.Direction, batchName string, notificationID int) ([]domain.WorkUnit, error) {
	units := make([]domain.WorkUnit, 0, len(selected))
	for _, pkg := range selected {
		unitID, err := id.Generate(id.PrefixWorkUnit)
		if err != nil {
			return nil, fmt.Errorf("work unit for %s: %w", pkg, err)
		}
		units = append(units, domain.WorkUnit{
			ID:             unitID,
			PackageName:    pkg,
			Mode:           mode,
			Direction:      dir,
			BatchName:      batchName,
			NotificationID: notificationID,
		})
	}
	return units, nil
}
