package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func at(month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(2026, month, day, hour, minute, sec, 0, time.UTC)
}

func TestNextTrigger(t *testing.T) {
	daily := &domain.Schedule{TimeHour: 9, TimeMinute: 0, Interval: 1}

	tests := []struct {
		name     string
		schedule *domain.Schedule
		now      time.Time
		fake     int
		want     time.Time
	}{
		{
			name:     "later today",
			schedule: daily,
			now:      at(3, 10, 8, 0, 0),
			want:     at(3, 10, 9, 0, 0),
		},
		{
			name:     "exactly at trigger time moves to next day",
			schedule: daily,
			now:      at(3, 10, 9, 0, 0),
			want:     at(3, 11, 9, 0, 0),
		},
		{
			name:     "already passed today",
			schedule: daily,
			now:      at(3, 10, 10, 0, 0),
			want:     at(3, 11, 9, 0, 0),
		},
		{
			name:     "interval counts from anchor day",
			schedule: &domain.Schedule{TimeHour: 9, Interval: 3, TimePlaced: at(3, 8, 10, 0, 0)},
			now:      at(3, 10, 10, 0, 0),
			want:     at(3, 11, 9, 0, 0),
		},
		{
			name:     "missed triggers are skipped",
			schedule: &domain.Schedule{TimeHour: 9, Interval: 3, TimePlaced: at(3, 1, 12, 0, 0)},
			now:      at(3, 10, 8, 0, 0),
			want:     at(3, 10, 9, 0, 0),
		},
		{
			name:     "anchor in the future is ignored",
			schedule: &domain.Schedule{TimeHour: 9, Interval: 7, TimePlaced: at(3, 20, 0, 0, 0)},
			now:      at(3, 10, 8, 0, 0),
			want:     at(3, 10, 9, 0, 0),
		},
		{
			name:     "zero interval behaves as daily",
			schedule: &domain.Schedule{TimeHour: 9},
			now:      at(3, 10, 10, 0, 0),
			want:     at(3, 11, 9, 0, 0),
		},
		{
			name:     "fake minutes grid",
			schedule: daily,
			now:      at(3, 10, 10, 7, 30),
			fake:     15,
			want:     at(3, 10, 10, 15, 0),
		},
		{
			name:     "fake minutes wrap the hour",
			schedule: daily,
			now:      at(3, 10, 10, 50, 0),
			fake:     15,
			want:     at(3, 10, 11, 0, 0),
		},
		{
			name:     "compressed mode uses hour as minute",
			schedule: &domain.Schedule{TimeHour: 5, TimeMinute: 30, Interval: 1},
			now:      at(3, 10, 10, 7, 0),
			fake:     1,
			want:     at(3, 10, 11, 5, 30),
		},
		{
			name:     "compressed mode later this hour",
			schedule: &domain.Schedule{TimeHour: 20, TimeMinute: 0, Interval: 2},
			now:      at(3, 10, 10, 7, 0),
			fake:     1,
			want:     at(3, 10, 10, 20, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextTrigger(tt.schedule, tt.now, tt.fake)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.After(tt.now))
		})
	}
}

func TestNextTrigger_Idempotent(t *testing.T) {
	s := &domain.Schedule{TimeHour: 3, TimeMinute: 15, Interval: 5, TimePlaced: at(1, 2, 3, 4, 5)}
	now := at(6, 7, 8, 9, 10)

	first := NextTrigger(s, now, 0)
	second := NextTrigger(s, now, 0)
	assert.Equal(t, first, second)

	// Re-arming later on, before the trigger, still lands on the same time.
	assert.Equal(t, first, NextTrigger(s, first.Add(-time.Second), 0))
}

func TestNextTrigger_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := &domain.Schedule{TimeHour: 9, Interval: 1}
	// DST starts on 2026-03-29 in Europe.
	now := time.Date(2026, 3, 28, 10, 0, 0, 0, loc)

	got := NextTrigger(s, now, 0)
	assert.Equal(t, time.Date(2026, 3, 29, 9, 0, 0, 0, loc), got)
}
