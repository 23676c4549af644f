package api

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neobackupapp/neobackup-server/internal/command"
	"github.com/neobackupapp/neobackup-server/internal/dispatcher"
)

func TestRunScheduleCommand(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	resp := ts.api.Post("/api/v1/commands/run-schedule", map[string]any{"name": "nightly"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	reply := decodeData[command.Reply](t, resp.Body.Bytes())
	assert.Equal(t, command.RunSchedule, reply.Command)
	require.NotNil(t, reply.Trigger)
	assert.Equal(t, dispatcher.OutcomeRunning, reply.Trigger.Outcome)
	assert.Equal(t, "batch-test", reply.Trigger.Batch)
	assert.Equal(t, []int64{sched.ID}, ts.dispatcher.triggered)
}

func TestRunScheduleCommand_DuplicateIsNotAnError(t *testing.T) {
	ts := setupTestServer(t)
	ts.createSchedule(t, nightlyBody())
	ts.dispatcher.outcome = dispatcher.OutcomeRejectedDuplicate

	resp := ts.api.Post("/api/v1/commands/run-schedule", map[string]any{"name": "nightly"})
	require.Equal(t, http.StatusOK, resp.Code)

	reply := decodeData[command.Reply](t, resp.Body.Bytes())
	assert.Equal(t, dispatcher.OutcomeRejectedDuplicate, reply.Trigger.Outcome)
	assert.Contains(t, reply.Detail, "already running")
}

func TestRunScheduleCommand_UnknownSchedule(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/commands/run-schedule", map[string]any{"name": "missing"})

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body.Bytes()).Code)
}

func TestCancelCommand(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/commands/cancel", map[string]any{"batch": "batch-test"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 3, decodeData[command.Reply](t, resp.Body.Bytes()).Dropped)

	resp = ts.api.Post("/api/v1/commands/cancel", map[string]any{"batch": "batch-unknown"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestCancelScheduleCommand(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	// A periodic cancel removes the alarm and keeps the running batch.
	_, err := ts.dispatcher.Trigger(context.Background(), sched.ID, dispatcher.SourceCommand)
	require.NoError(t, err)

	resp := ts.api.Post("/api/v1/commands/cancel-schedule", map[string]any{"schedule_id": sched.ID, "periodic": true})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	reply := decodeData[command.Reply](t, resp.Body.Bytes())
	assert.True(t, reply.AlarmRemoved)
	assert.Empty(t, ts.batches.cancelled)

	resp = ts.api.Post("/api/v1/commands/cancel-schedule", map[string]any{"schedule_id": sched.ID})
	require.Equal(t, http.StatusOK, resp.Code)
	reply = decodeData[command.Reply](t, resp.Body.Bytes())
	assert.False(t, reply.AlarmRemoved)
	assert.Equal(t, []string{"batch-test"}, ts.batches.cancelled)
}

func TestRescheduleCommand(t *testing.T) {
	ts := setupTestServer(t)
	sched := ts.createSchedule(t, nightlyBody())

	resp := ts.api.Post("/api/v1/commands/reschedule", map[string]any{"name": "nightly", "time": "18:45"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	reply := decodeData[command.Reply](t, resp.Body.Bytes())
	assert.Equal(t, "nightly -> 18:45", reply.Detail)
	assert.False(t, reply.NextRun.IsZero())

	stored, err := ts.db.GetSchedule(context.Background(), sched.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, stored.TimeHour)
	assert.Equal(t, 45, stored.TimeMinute)
}

func TestExecuteCommand(t *testing.T) {
	ts := setupTestServer(t)
	ts.createSchedule(t, nightlyBody())

	resp := ts.api.Post("/api/v1/commands", map[string]any{"name": "run_schedule", "schedule_name": "nightly"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, command.RunSchedule, decodeData[command.Reply](t, resp.Body.Bytes()).Command)

	resp = ts.api.Post("/api/v1/commands", map[string]any{"name": "SELF_DESTRUCT"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCrashCommand(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/commands/crash")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	reply := decodeData[command.Reply](t, resp.Body.Bytes())
	assert.True(t, strings.HasPrefix(reply.Detail, "recovered:"), reply.Detail)
}

func TestCrashCommand_DebugDisabled(t *testing.T) {
	ts := setupTestServerWith(t, testOptions{})

	resp := ts.api.Post("/api/v1/commands/crash")

	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, resp.Body.Bytes()).Code)
}
