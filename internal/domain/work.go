package domain

import (
	"fmt"
	"time"
)

// Direction of a work unit.
type Direction string

const (
	DirectionBackup  Direction = "backup"
	DirectionRestore Direction = "restore"
)

// WorkUnit is one package's single backup or restore operation inside a batch.
// It is immutable once submitted.
type WorkUnit struct {
	ID             string    `json:"id"`
	PackageName    string    `json:"package_name"`
	Mode           Mode      `json:"mode"`
	Direction      Direction `json:"direction"`
	BatchName      string    `json:"batch_name"`
	NotificationID int       `json:"notification_id"`
}

// UnitStatus is the terminal state of a work unit.
type UnitStatus string

const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitCancelled UnitStatus = "cancelled"
)

// UnitResult is reported exactly once per work unit.
type UnitResult struct {
	UnitID       string     `json:"unit_id"`
	PackageName  string     `json:"package_name"`
	PackageLabel string     `json:"package_label,omitempty"`
	Status       UnitStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// Succeeded reports whether the unit counts as a success in the aggregate.
func (r UnitResult) Succeeded() bool {
	return r.Status == UnitSucceeded
}

// Label returns the best human name for the package.
func (r UnitResult) Label() string {
	if r.PackageLabel != "" {
		return r.PackageLabel
	}
	return r.PackageName
}

// BatchResult is the aggregated outcome of a batch, handed off once at completion.
type BatchResult struct {
	Name        string    `json:"name"`
	ScheduleID  int64     `json:"schedule_id"`
	Units       []string  `json:"units"`
	Queued      int       `json:"queued"`
	Finished    int       `json:"finished"`
	Success     bool      `json:"success"`
	Errors      string    `json:"errors"`
	Cancelled   bool      `json:"cancelled"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the batch ran.
func (b BatchResult) Duration() time.Duration {
	if b.CompletedAt.IsZero() {
		return 0
	}
	return b.CompletedAt.Sub(b.StartedAt)
}

// BatchName builds the human-readable batch name for a run started at t.
func BatchName(name string, t time.Time) string {
	return fmt.Sprintf("%s @ %s", name, t.Format("2006-01-02 15:04:05"))
}

// ManualScheduleID marks batches not started by a schedule.
const ManualScheduleID int64 = 0
