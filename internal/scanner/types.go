package scanner

import (
	"time"
)

// ScanResult represents the outcome of scanning the backup root.
type ScanResult struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Progress    *Progress
	Packages    int
	Records     int
	Added       int
	Removed     int
	Errors      int
}

// Duration returns how long the scan took.
func (r *ScanResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Progress tracks scan progress.
type Progress struct {
	Phase       ScanPhase
	CurrentItem string
	Errors      []ScanError
	Current     int
	Total       int
}

// ScanPhase represents the current scan phase.
type ScanPhase string

// ScanPhase constants define the different phases of a backup root scan.
const (
	// PhaseListing enumerates package directories.
	PhaseListing ScanPhase = "listing"
	// PhaseReading parses properties files.
	PhaseReading ScanPhase = "reading"
	// PhaseApplying replaces the registry contents.
	PhaseApplying ScanPhase = "applying"
	// PhaseComplete represents the completion phase.
	PhaseComplete ScanPhase = "complete"
)

// ScanError represents an error during scanning.
type ScanError struct {
	Time  time.Time
	Error error
	Path  string
	Phase ScanPhase
}
