package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	"github.com/neobackupapp/neobackup-server/internal/registry"
	"github.com/neobackupapp/neobackup-server/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func batchAt(scheduleID int64, minutes int) domain.BatchResult {
	completed := base.Add(time.Duration(minutes) * time.Minute)
	name := domain.BatchName(fmt.Sprintf("s%d", scheduleID), completed)
	return domain.BatchResult{
		Name:        name,
		ScheduleID:  scheduleID,
		Queued:      2,
		Finished:    2,
		Success:     true,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
	}
}

func TestSaveAndGetBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	b := batchAt(1, 0)
	require.NoError(t, s.SaveBatch(ctx, b))

	got, err := s.GetBatch(ctx, b.Name)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)
	assert.Equal(t, int64(1), got.ScheduleID)
	assert.True(t, got.CompletedAt.Equal(b.CompletedAt))

	_, err = s.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.SaveBatch(ctx, domain.BatchResult{})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSaveBatch_ReplaceKeepsOneIndexEntry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	b := batchAt(1, 0)
	require.NoError(t, s.SaveBatch(ctx, b))

	b.CompletedAt = b.CompletedAt.Add(time.Hour)
	b.Success = false
	require.NoError(t, s.SaveBatch(ctx, b))

	page, err := s.ListBatches(ctx, 0, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.False(t, page.Items[0].Success)
}

func TestListBatches_NewestFirstWithCursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, s.SaveBatch(ctx, batchAt(1, i)))
	}

	first, err := s.ListBatches(ctx, 0, store.PaginationParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.NextCursor)
	assert.Equal(t, batchAt(1, 4).Name, first.Items[0].Name)
	assert.Equal(t, batchAt(1, 3).Name, first.Items[1].Name)

	second, err := s.ListBatches(ctx, 0, store.PaginationParams{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 2)
	assert.Equal(t, batchAt(1, 2).Name, second.Items[0].Name)

	third, err := s.ListBatches(ctx, 0, store.PaginationParams{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	assert.False(t, third.HasMore)
	assert.Empty(t, third.NextCursor)
	assert.Equal(t, batchAt(1, 0).Name, third.Items[0].Name)
}

func TestListBatches_FilterBySchedule(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBatch(ctx, batchAt(1, 0)))
	require.NoError(t, s.SaveBatch(ctx, batchAt(2, 1)))
	require.NoError(t, s.SaveBatch(ctx, batchAt(1, 2)))

	page, err := s.ListBatches(ctx, 2, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(2), page.Items[0].ScheduleID)

	_, err = s.ListBatches(ctx, 0, store.PaginationParams{Cursor: "%%%"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestPruneBatches(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := range 4 {
		require.NoError(t, s.SaveBatch(ctx, batchAt(1, i)))
	}

	removed, err := s.PruneBatches(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	page, err := s.ListBatches(ctx, 0, store.PaginationParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, batchAt(1, 3).Name, page.Items[0].Name)

	_, err = s.GetBatch(ctx, batchAt(1, 0).Name)
	assert.ErrorIs(t, err, store.ErrNotFound)

	removed, err = s.PruneBatches(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func record(pkg string, hours int) domain.BackupRecord {
	return domain.BackupRecord{
		PackageName: pkg,
		BackupDate:  base.Add(time.Duration(hours) * time.Hour),
		HasAPK:      true,
	}
}

func TestRecords_SaveGetDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecords(ctx, "com.a", []domain.BackupRecord{record("com.a", 0), record("com.a", 1)}))

	got, err := s.GetRecords(ctx, "com.a")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.SaveRecords(ctx, "com.a", nil))
	got, err = s.GetRecords(ctx, "com.a")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an absent package is not an error.
	require.NoError(t, s.SaveRecords(ctx, "com.none", nil))
}

func TestReplaceRecords(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecords(ctx, "com.old", []domain.BackupRecord{record("com.old", 0)}))

	require.NoError(t, s.ReplaceRecords(ctx, map[string][]domain.BackupRecord{
		"com.a": {record("com.a", 0)},
		"com.b": {record("com.b", 0), record("com.b", 1)},
	}))

	all, err := s.LoadRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	old, err := s.GetRecords(ctx, "com.old")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestMirrorRegistry(t *testing.T) {
	s := setupTestStore(t)
	reg := registry.New(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.MirrorRegistry(ctx, reg)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// The subscription is registered asynchronously; keep writing until the
	// mirror has caught up.
	require.Eventually(t, func() bool {
		reg.Put(record("com.a", 0))
		got, err := s.GetRecords(context.Background(), "com.a")
		return err == nil && len(got) == 1
	}, 2*time.Second, 20*time.Millisecond)

	reg.ReplaceAll([]domain.BackupRecord{record("com.b", 0), record("com.c", 0)})
	require.Eventually(t, func() bool {
		all, err := s.LoadRecords(context.Background())
		if err != nil || len(all) != 2 {
			return false
		}
		gone, _ := s.GetRecords(context.Background(), "com.a")
		return len(gone) == 0
	}, 2*time.Second, 20*time.Millisecond)

	reg.Remove("com.b")
	require.Eventually(t, func() bool {
		got, _ := s.GetRecords(context.Background(), "com.b")
		return len(got) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
