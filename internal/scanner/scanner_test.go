package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/backup"
	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/logger"
	"github.com/neobackupapp/neobackup-server/internal/registry"
)

func seed(t *testing.T, dir *backup.Dir, pkgs int, revs int) {
	t.Helper()
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	for p := range pkgs {
		for r := range revs {
			_, err := dir.Write(domain.BackupRecord{
				PackageName: fmt.Sprintf("com.app%d", p),
				BackupDate:  base.Add(time.Duration(r) * time.Hour),
				HasAPK:      true,
			})
			require.NoError(t, err)
		}
	}
}

func TestRescan_ReplacesRegistry(t *testing.T) {
	dir := backup.NewDir(t.TempDir(), logger.Discard())
	seed(t, dir, 4, 2)

	reg := registry.New(logger.Discard())
	reg.Replace("com.stale", []domain.BackupRecord{{PackageName: "com.stale", BackupDate: time.Now()}})
	reg.Replace("com.app0", []domain.BackupRecord{{PackageName: "com.app0", BackupDate: time.Now()}})

	s := NewScanner(dir, reg, logger.Discard())
	var updates atomic.Int32
	result, err := s.Rescan(context.Background(), ScanOptions{Workers: 2, OnProgress: func(Progress) { updates.Add(1) }})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Packages)
	assert.Equal(t, 8, result.Records)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Zero(t, result.Errors)
	assert.Positive(t, updates.Load())

	assert.False(t, reg.Has("com.stale"))
	assert.Len(t, reg.Get("com.app3"), 2)
	assert.Equal(t, 8, reg.Count())
}

func TestRescan_BrokenFileIsCounted(t *testing.T) {
	dir := backup.NewDir(t.TempDir(), logger.Discard())
	seed(t, dir, 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir.PackageDir("com.app0"), "bad.properties"), []byte("?"), 0o644))

	reg := registry.New(logger.Discard())
	result, err := NewScanner(dir, reg, logger.Discard()).Rescan(context.Background(), ScanOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Len(t, reg.Get("com.app0"), 1)
}

func TestRescan_MissingRoot(t *testing.T) {
	dir := backup.NewDir(filepath.Join(t.TempDir(), "missing"), logger.Discard())
	reg := registry.New(logger.Discard())
	reg.Replace("com.keep", []domain.BackupRecord{{PackageName: "com.keep", BackupDate: time.Now()}})

	_, err := NewScanner(dir, reg, logger.Discard()).Rescan(context.Background(), ScanOptions{})

	assert.True(t, errors.Is(err, domainerrors.ErrStorageUnavailable))
	assert.True(t, reg.Has("com.keep"), "registry untouched on failure")
}

func TestRescan_Cancelled(t *testing.T) {
	dir := backup.NewDir(t.TempDir(), logger.Discard())
	seed(t, dir, 3, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(dir, registry.New(logger.Discard()), logger.Discard()).Rescan(ctx, ScanOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressTracker(t *testing.T) {
	var last Progress
	tr := NewProgressTracker(func(p Progress) { last = p })

	tr.SetPhase(PhaseReading, 2)
	tr.Increment("a")
	tr.AddError(ScanError{Path: "x", Error: errors.New("bad")})

	got := tr.Get()
	assert.Equal(t, PhaseReading, got.Phase)
	assert.Equal(t, 1, got.Current)
	assert.Equal(t, 2, got.Total)
	assert.Len(t, got.Errors, 1)
	assert.Equal(t, got, last)
}
