package models

import "time"

type EventType string

const (
	EventTypeSampleRecorded EventType = "sample_recorded"
	EventTypePodIdle        EventType = "pod_idle"
	EventTypeStopExecuted   EventType = "stop_executed"
	EventTypeStopFailed     EventType = "stop_failed"
	EventTypeCompaction     EventType = "compaction"
	EventTypeRetentionSweep EventType = "retention_sweep"
	EventTypeAlert          EventType = "alert"
	EventTypeError          EventType = "error"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a monitoring occurrence published on the event bus: fanned
// out to websocket clients and optionally persisted for audit history.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	PodID     string      `json:"pod_id,omitempty"`
	Severity  Severity    `json:"severity"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewEvent(eventType EventType, podID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		PodID:     podID,
		Severity:  SeverityInfo,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (e *Event) WithSeverity(s Severity) *Event {
	e.Severity = s
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}
