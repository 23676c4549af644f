package dispatcher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

func TestRunManual_Backup(t *testing.T) {
	f := newFixture(t, nightly())

	res, err := f.d.RunManual(context.Background(), ManualRequest{
		Packages:  []string{"com.a", " com.b ", "com.a", ""},
		Mode:      domain.ModeAPK,
		Direction: domain.DirectionBackup,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRunning, res.Outcome)
	assert.Equal(t, 2, res.Packages)
	assert.True(t, strings.HasPrefix(res.Batch, "Manual backup @ "))
	assert.True(t, f.d.WakeLockHeld())
	assert.Empty(t, f.d.Running(), "manual batches are not schedule runs")

	f.pool.release()

	results := f.completed()
	require.Len(t, results, 1)
	assert.Equal(t, res.Batch, results[0].Name)
	assert.Equal(t, int64(0), results[0].ScheduleID)
	assert.True(t, results[0].Success)
	assert.False(t, f.d.WakeLockHeld())
	_, armed := f.d.NextAlarm(1)
	assert.False(t, armed)
}

func TestRunManual_RestoreNeedsBackups(t *testing.T) {
	f := newFixture(t)
	f.reg.Put(domain.BackupRecord{PackageName: "com.a", BackupDate: time.Now().Add(-time.Hour), HasAPK: true})

	_, err := f.d.RunManual(context.Background(), ManualRequest{
		Packages:  []string{"com.a", "com.b"},
		Mode:      domain.ModeAPK,
		Direction: domain.DirectionRestore,
	})
	require.Error(t, err)
	assert.Equal(t, domainerrors.CodeValidation, domainerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "com.b")
	assert.Empty(t, f.coord.Active())

	res, err := f.d.RunManual(context.Background(), ManualRequest{
		Packages:  []string{"com.a"},
		Mode:      domain.ModeAPK,
		Direction: domain.DirectionRestore,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Batch, "Manual restore @ "))
	f.pool.release()
	require.Len(t, f.completed(), 1)
}

func TestRunManual_Rejects(t *testing.T) {
	tests := []struct {
		name string
		req  ManualRequest
		code domainerrors.Code
	}{
		{"no packages", ManualRequest{Mode: domain.ModeAll, Direction: domain.DirectionBackup}, domainerrors.CodeEmptySelection},
		{"bad mode", ManualRequest{Packages: []string{"com.a"}, Direction: domain.DirectionBackup}, domainerrors.CodeValidation},
		{"bad direction", ManualRequest{Packages: []string{"com.a"}, Mode: domain.ModeAll, Direction: "sideways"}, domainerrors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.d.RunManual(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, domainerrors.CodeOf(err))
			assert.False(t, f.d.WakeLockHeld())
		})
	}
}

func TestRunManual_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.storage.err = assert.AnError

	_, err := f.d.RunManual(context.Background(), ManualRequest{
		Packages:  []string{"com.a"},
		Mode:      domain.ModeAll,
		Direction: domain.DirectionBackup,
	})
	assert.Equal(t, domainerrors.CodeStorageUnavailable, domainerrors.CodeOf(err))
}
