// Package scanner rebuilds the backup registry from the backup root.
package scanner

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// Registry is the part of the backup registry a rescan replaces.
type Registry interface {
	Packages() []string
	ReplaceAll(records []domain.BackupRecord)
}

// Scanner reads every properties file below the backup root.
type Scanner struct {
	dir      *backup.Dir
	registry Registry
	logger   *slog.Logger
	workers  int

	// one rescan at a time
	mu sync.Mutex
}

// ScanOptions configures a scan.
type ScanOptions struct {
	OnProgress func(Progress)
	Workers    int
}

// NewScanner creates a scanner.
func NewScanner(dir *backup.Dir, registry Registry, logger *slog.Logger) *Scanner {
	return &Scanner{
		dir:      dir,
		registry: registry,
		logger:   logger,
		workers:  runtime.NumCPU(),
	}
}

// Scan reads the backup root without touching the registry. A missing or
// unreadable root is reported as STORAGE_UNAVAILABLE.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) ([]domain.BackupRecord, *ScanResult, error) {
	result := &ScanResult{StartedAt: time.Now()}
	tracker := NewProgressTracker(opts.OnProgress)

	if err := s.dir.Check(); err != nil {
		return nil, nil, domainerrors.StorageUnavailable(err, "backup root is not accessible")
	}

	pkgs, err := s.dir.Packages()
	if err != nil {
		return nil, nil, domainerrors.StorageUnavailable(err, "cannot list backup root")
	}
	result.Packages = len(pkgs)
	tracker.SetPhase(PhaseReading, len(pkgs))

	workers := opts.Workers
	if workers <= 0 {
		workers = s.workers
	}

	var (
		mu      sync.Mutex
		records []domain.BackupRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, pkg := range pkgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := s.dir.ListPackage(pkg)
			if err != nil {
				// Broken files are skipped; the rest of the package still counts.
				s.logger.Warn("skipping unreadable backups",
					slog.String("package", pkg),
					slog.String("error", err.Error()),
				)
				tracker.AddError(ScanError{
					Time:  time.Now(),
					Error: err,
					Path:  s.dir.PackageDir(pkg),
					Phase: PhaseReading,
				})
			}
			mu.Lock()
			records = append(records, recs...)
			mu.Unlock()
			tracker.Increment(pkg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	progress := tracker.Get()
	result.Progress = &progress
	result.Records = len(records)
	result.Errors = len(progress.Errors)
	result.CompletedAt = time.Now()
	return records, result, nil
}

// Rescan scans the root and replaces the whole registry with the result.
func (s *Scanner) Rescan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("rescanning backup root", slog.String("root", s.dir.Root()))

	records, result, err := s.Scan(ctx, opts)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("rescan failed", slog.String("error", err.Error()))
		}
		return nil, err
	}

	before := make(map[string]struct{})
	for _, pkg := range s.registry.Packages() {
		before[pkg] = struct{}{}
	}
	after := make(map[string]struct{})
	for _, r := range records {
		after[r.PackageName] = struct{}{}
	}
	for pkg := range after {
		if _, ok := before[pkg]; !ok {
			result.Added++
		}
	}
	for pkg := range before {
		if _, ok := after[pkg]; !ok {
			result.Removed++
		}
	}

	s.registry.ReplaceAll(records)

	s.logger.Info("rescan complete",
		slog.Duration("duration", result.Duration()),
		slog.Int("packages", result.Packages),
		slog.Int("records", result.Records),
		slog.Int("added", result.Added),
		slog.Int("removed", result.Removed),
		slog.Int("errors", result.Errors),
	)
	return result, nil
}
