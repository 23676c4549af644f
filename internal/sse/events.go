// Package sse implements Server-Sent Events for run, batch and registry updates.
package sse

import (
	"time"

	"github.com/neobackupapp/neobackup-server/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventRunBegin is sent when a schedule run starts.
	EventRunBegin EventType = "run.begin"
	// EventRunEnd is sent when a schedule run finished and was re-armed.
	EventRunEnd EventType = "run.end"
	// EventRunDuplicate is sent when a trigger was rejected because the
	// schedule is already running.
	EventRunDuplicate EventType = "run.duplicate"
	// EventRunEmptySelection is sent when no package matched a schedule.
	EventRunEmptySelection EventType = "run.empty_selection"
	// EventRunFailed is sent when a run aborted unexpectedly.
	EventRunFailed EventType = "run.failed"

	// EventUnitError is sent for every work unit that did not succeed.
	EventUnitError EventType = "unit.error"
	// EventBatchCompleted is sent once per batch.
	EventBatchCompleted EventType = "batch.completed"

	// EventRegistryChanged is sent after the backup registry changed.
	EventRegistryChanged EventType = "registry.changed"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`

	// ScheduleID lets clients subscribe to one schedule. Zero means
	// "not schedule specific" and is delivered to everyone.
	ScheduleID int64 `json:"-"`
}

// RunEventData is the payload of every run.* event.
type RunEventData struct {
	NextRun      *time.Time `json:"next_run,omitempty"`
	RunID        string     `json:"run_id"`
	ScheduleName string     `json:"schedule_name"`
	Source       string     `json:"source,omitempty"`
	Batch        string     `json:"batch,omitempty"`
	Detail       string     `json:"detail,omitempty"`
	ScheduleID   int64      `json:"schedule_id"`
	Packages     int        `json:"packages,omitempty"`
}

// UnitErrorEventData is the payload of unit.error events.
type UnitErrorEventData struct {
	Batch       string `json:"batch"`
	ScheduleID  int64  `json:"schedule_id"`
	UnitID      string `json:"unit_id"`
	PackageName string `json:"package_name"`
	Status      string `json:"status"`
	Error       string `json:"error"`
}

// BatchCompletedEventData is the payload of batch.completed events.
type BatchCompletedEventData struct {
	Result domain.BatchResult `json:"result"`
}

// RegistryChangedEventData is the payload of registry.changed events.
type RegistryChangedEventData struct {
	Version  uint64   `json:"version"`
	Packages []string `json:"packages,omitempty"`
	All      bool     `json:"all"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

func newRunEvent(t EventType, data RunEventData) Event {
	return Event{
		Type:       t,
		Data:       data,
		ScheduleID: data.ScheduleID,
		Timestamp:  time.Now(),
	}
}

// NewRunBeginEvent creates a run.begin event.
func NewRunBeginEvent(data RunEventData) Event {
	return newRunEvent(EventRunBegin, data)
}

// NewRunEndEvent creates a run.end event.
func NewRunEndEvent(data RunEventData) Event {
	return newRunEvent(EventRunEnd, data)
}

// NewRunDuplicateEvent creates a run.duplicate event.
func NewRunDuplicateEvent(data RunEventData) Event {
	return newRunEvent(EventRunDuplicate, data)
}

// NewRunEmptySelectionEvent creates a run.empty_selection event.
func NewRunEmptySelectionEvent(data RunEventData) Event {
	return newRunEvent(EventRunEmptySelection, data)
}

// NewRunFailedEvent creates a run.failed event.
func NewRunFailedEvent(data RunEventData) Event {
	return newRunEvent(EventRunFailed, data)
}

// NewUnitErrorEvent creates a unit.error event.
func NewUnitErrorEvent(scheduleID int64, r domain.UnitResult, batch string) Event {
	return Event{
		Type: EventUnitError,
		Data: UnitErrorEventData{
			Batch:       batch,
			ScheduleID:  scheduleID,
			UnitID:      r.UnitID,
			PackageName: r.PackageName,
			Status:      string(r.Status),
			Error:       r.Error,
		},
		ScheduleID: scheduleID,
		Timestamp:  time.Now(),
	}
}

// NewBatchCompletedEvent creates a batch.completed event.
func NewBatchCompletedEvent(result domain.BatchResult) Event {
	return Event{
		Type:       EventBatchCompleted,
		Data:       BatchCompletedEventData{Result: result},
		ScheduleID: result.ScheduleID,
		Timestamp:  time.Now(),
	}
}

// NewRegistryChangedEvent creates a registry.changed event.
func NewRegistryChangedEvent(version uint64, packages []string, all bool) Event {
	return Event{
		Type: EventRegistryChanged,
		Data: RegistryChangedEventData{
			Version:  version,
			Packages: packages,
			All:      all,
		},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type: EventHeartbeat,
		Data: HeartbeatEventData{
			ServerTime: time.Now(),
		},
		Timestamp: time.Now(),
	}
}
