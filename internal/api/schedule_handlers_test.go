package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

func nightlyBody() map[string]any {
	return map[string]any{
		"name":     "nightly",
		"enabled":  true,
		"time":     "03:30",
		"interval": 1,
		"mode":     []string{"apk", "data"},
	}
}

func TestCreateSchedule(t *testing.T) {
	ts := setupTestServer(t)

	sched := ts.createSchedule(t, nightlyBody())

	assert.NotZero(t, sched.ID)
	assert.Equal(t, "nightly", sched.Name)
	assert.Equal(t, "03:30", sched.Time)
	assert.Equal(t, []string{"apk", "data"}, sched.Mode)
	assert.Equal(t, domain.MainFilterUser, sched.Filter)
	assert.NotNil(t, sched.CustomList)
	assert.NotNil(t, sched.BlockList)

	_, armed := ts.dispatcher.NextAlarm(sched.ID)
	assert.True(t, armed, "enabled schedule must be armed")
}

func TestCreateSchedule_DefaultsToAllModes(t *testing.T) {
	ts := setupTestServer(t)

	body := nightlyBody()
	delete(body, "mode")
	sched := ts.createSchedule(t, body)

	assert.Equal(t, []string{"apk", "data", "device-protected", "external", "obb", "media"}, sched.Mode)
}

func TestCreateSchedule_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"bad time format", func(b map[string]any) { b["time"] = "3pm" }},
		{"hour out of range", func(b map[string]any) { b["time"] = "25:00" }},
		{"zero interval", func(b map[string]any) { b["interval"] = 0 }},
		{"unknown mode", func(b map[string]any) { b["mode"] = []string{"everything"} }},
		{"bad package name", func(b map[string]any) { b["custom_list"] = []string{"not a package"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			body := nightlyBody()
			tt.mutate(body)

			resp := ts.api.Post("/api/v1/schedules", body)

			require.Contains(t, []int{http.StatusBadRequest, http.StatusUnprocessableEntity}, resp.Code, resp.Body.String())
			env := decodeError(t, resp.Body.Bytes())
			assert.Equal(t, "VALIDATION", env.Code)
		})
	}
}

func TestCreateSchedule_DuplicateName(t *testing.T) {
	ts := setupTestServer(t)
	ts.createSchedule(t, nightlyBody())

	resp := ts.api.Post("/api/v1/schedules", nightlyBody())

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeError(t, resp.Body.Bytes()).Code)
}

func TestListSchedules(t *testing.T) {
	ts := setupTestServer(t)
	for _, name := range []string{"weekly", "Daily", "apps"} {
		body := nightlyBody()
		body["name"] = name
		ts.createSchedule(t, body)
	}

	resp := ts.api.Get("/api/v1/schedules")
	require.Equal(t, http.StatusOK, resp.Code)

	list := decodeData[ListSchedulesResponse](t, resp.Body.Bytes())
	names := make([]string, 0, len(list.Schedules))
	for _, s := range list.Schedules {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"apps", "Daily", "weekly"}, names)
}

func TestGetSchedule_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/schedules/999")

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body.Bytes()).Code)
}

func TestUpdateSchedule(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	body := nightlyBody()
	body["time"] = "22:15"
	body["interval"] = 3
	resp := ts.api.Put(fmt.Sprintf("/api/v1/schedules/%d", sched.ID), body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	updated := decodeData[ScheduleResponse](t, resp.Body.Bytes())
	assert.Equal(t, "22:15", updated.Time)
	assert.Equal(t, 3, updated.Interval)
}

func TestSetScheduleEnabled(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())
	path := fmt.Sprintf("/api/v1/schedules/%d/enabled", sched.ID)

	resp := ts.api.Patch(path, map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.False(t, decodeData[ScheduleResponse](t, resp.Body.Bytes()).Enabled)
	_, armed := ts.dispatcher.NextAlarm(sched.ID)
	assert.False(t, armed, "disabled schedule must be disarmed")

	resp = ts.api.Patch(path, map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, resp.Code)
	_, armed = ts.dispatcher.NextAlarm(sched.ID)
	assert.True(t, armed)
}

func TestDeleteSchedule(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())
	path := fmt.Sprintf("/api/v1/schedules/%d", sched.ID)

	resp := ts.api.Delete(path)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	_, armed := ts.dispatcher.NextAlarm(sched.ID)
	assert.False(t, armed)

	_, err := ts.db.GetSchedule(context.Background(), sched.ID)
	assert.Error(t, err)
}

func TestScheduleNextRun(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	resp := ts.api.Get(fmt.Sprintf("/api/v1/schedules/%d/next", sched.ID))
	require.Equal(t, http.StatusOK, resp.Code)

	next := decodeData[NextRunResponse](t, resp.Body.Bytes())
	assert.True(t, next.Armed)
	assert.True(t, testNow.Add(time.Hour).Equal(next.At))
	assert.False(t, next.Preview.IsZero())
}

func TestBlocklists(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	resp := ts.api.Put("/api/v1/blocklist", map[string]any{"packages": []string{"com.termux"}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, []string{"com.termux"}, decodeData[BlocklistBody](t, resp.Body.Bytes()).Packages)

	path := fmt.Sprintf("/api/v1/schedules/%d/blocklist", sched.ID)
	resp = ts.api.Put(path, map[string]any{"packages": []string{"org.mozilla.firefox"}})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get(path)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"org.mozilla.firefox"}, decodeData[BlocklistBody](t, resp.Body.Bytes()).Packages)

	resp = ts.api.Get("/api/v1/schedules/999/blocklist")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
