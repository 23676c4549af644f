package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

func TestScheduleService_Create(t *testing.T) {
	svc, _, sched := newTestScheduleService(t)
	ctx := context.Background()

	in := testSchedule("Nightly", true)
	in.TagsList = []string{"Messengers", "messengers", "Work Apps"}
	created, err := svc.CreateSchedule(ctx, in)
	require.NoError(t, err)

	assert.NotZero(t, created.ID)
	assert.Equal(t, []string{"messengers", "work-apps"}, created.TagsList)
	assert.Equal(t, []rearmCall{{created.ID, true}}, sched.rearms)

	disabled, err := svc.CreateSchedule(ctx, testSchedule("Weekly", false))
	require.NoError(t, err)
	assert.Len(t, sched.rearms, 1, "disabled schedules are not armed")
	assert.False(t, disabled.Enabled)
}

func TestScheduleService_CreateRandomName(t *testing.T) {
	svc, _, _ := newTestScheduleService(t)

	created, err := svc.CreateSchedule(context.Background(), testSchedule("", false))
	require.NoError(t, err)
	assert.Contains(t, created.Name, "Schedule")
}

func TestScheduleService_CreateInvalid(t *testing.T) {
	svc, _, sched := newTestScheduleService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*domain.Schedule)
	}{
		{"interval zero", func(s *domain.Schedule) { s.Interval = 0 }},
		{"hour out of range", func(s *domain.Schedule) { s.TimeHour = 24 }},
		{"bad custom list", func(s *domain.Schedule) { s.CustomList = []string{"../../etc"} }},
		{"bad block list", func(s *domain.Schedule) { s.BlockList = []string{"not a package"} }},
		{"invalid mode", func(s *domain.Schedule) { s.Mode = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSchedule("Broken", true)
			tt.mutate(s)
			_, err := svc.CreateSchedule(ctx, s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domainerrors.ErrValidation), "got %v", err)
		})
	}
	assert.Empty(t, sched.rearms)
}

func TestScheduleService_CreateDuplicateName(t *testing.T) {
	svc, _, _ := newTestScheduleService(t)
	ctx := context.Background()

	_, err := svc.CreateSchedule(ctx, testSchedule("Nightly", false))
	require.NoError(t, err)
	_, err = svc.CreateSchedule(ctx, testSchedule("Nightly", false))
	assert.True(t, errors.Is(err, domainerrors.ErrAlreadyExists))
}

func TestScheduleService_Update(t *testing.T) {
	svc, _, sched := newTestScheduleService(t)
	ctx := context.Background()

	created, err := svc.CreateSchedule(ctx, testSchedule("Nightly", true))
	require.NoError(t, err)

	// A rename keeps the anchor.
	renamed := created.Copy()
	renamed.Name = "Nightly apps"
	_, err = svc.UpdateSchedule(ctx, renamed)
	require.NoError(t, err)
	assert.Equal(t, rearmCall{created.ID, false}, sched.rearms[len(sched.rearms)-1])

	// A time change moves it.
	moved := renamed.WithTime(22, 30)
	got, err := svc.UpdateSchedule(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, 22, got.TimeHour)
	assert.Equal(t, rearmCall{created.ID, true}, sched.rearms[len(sched.rearms)-1])

	// Disabling disarms.
	_, err = svc.SetEnabled(ctx, created.ID, false)
	require.NoError(t, err)
	assert.Contains(t, sched.disarmed, created.ID)
	_, armed := sched.NextAlarm(created.ID)
	assert.False(t, armed)

	_, err = svc.UpdateSchedule(ctx, &domain.Schedule{ID: 999, Name: "x", Interval: 1, Mode: domain.ModeAll})
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
}

func TestScheduleService_Delete(t *testing.T) {
	svc, _, sched := newTestScheduleService(t)
	ctx := context.Background()

	created, err := svc.CreateSchedule(ctx, testSchedule("Nightly", true))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSchedule(ctx, created.ID))
	assert.Equal(t, []int64{created.ID}, sched.disarmed)

	_, err = svc.GetSchedule(ctx, created.ID)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteSchedule(ctx, created.ID), domainerrors.ErrNotFound))
}

func TestScheduleService_ListCollated(t *testing.T) {
	svc, _, _ := newTestScheduleService(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "Écran", "alpha", "Beta"} {
		_, err := svc.CreateSchedule(ctx, testSchedule(name, false))
		require.NoError(t, err)
	}

	list, err := svc.ListSchedules(ctx)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, s := range list {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"alpha", "Beta", "Écran", "zeta"}, names)
}

func TestScheduleService_NextRun(t *testing.T) {
	svc, _, _ := newTestScheduleService(t)
	ctx := context.Background()

	armed, err := svc.CreateSchedule(ctx, testSchedule("Nightly", true))
	require.NoError(t, err)
	next, err := svc.NextRun(ctx, armed.ID)
	require.NoError(t, err)
	assert.True(t, next.Armed)
	assert.Equal(t, testNow.Add(time.Hour), next.At)

	idle, err := svc.CreateSchedule(ctx, testSchedule("Idle", false))
	require.NoError(t, err)
	next, err = svc.NextRun(ctx, idle.ID)
	require.NoError(t, err)
	assert.False(t, next.Armed)
	assert.True(t, next.At.IsZero())
	// 09:00 on the day of testNow (08:00).
	assert.Equal(t, 9, next.Preview.Hour())
}

func TestScheduleService_Blocklists(t *testing.T) {
	svc, _, _ := newTestScheduleService(t)
	ctx := context.Background()

	global, err := svc.SetBlocklist(ctx, domain.GlobalBlocklistID, []string{"com.b.app", "com.a.app", "com.b.app"})
	require.NoError(t, err)
	assert.Equal(t, []string{"com.a.app", "com.b.app"}, global)

	created, err := svc.CreateSchedule(ctx, testSchedule("Nightly", false))
	require.NoError(t, err)
	_, err = svc.SetBlocklist(ctx, created.ID, []string{"org.c.app"})
	require.NoError(t, err)

	list, err := svc.GetBlocklist(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"org.c.app"}, list)

	_, err = svc.SetBlocklist(ctx, created.ID, []string{"bad name"})
	assert.True(t, errors.Is(err, domainerrors.ErrValidation))

	_, err = svc.GetBlocklist(ctx, 4242)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
}
