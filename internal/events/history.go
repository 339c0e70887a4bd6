package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS pod_events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	pod_id     TEXT,
	severity   TEXT NOT NULL,
	message    TEXT NOT NULL,
	trace_id   TEXT,
	data       JSONB,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pod_events_pod_id ON pod_events (pod_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_pod_events_type ON pod_events (type, occurred_at DESC);
`

// persistedTypes are the events worth a durable audit row; routine
// sample traffic stays off the database.
var persistedTypes = map[models.EventType]bool{
	models.EventTypePodIdle:        true,
	models.EventTypeStopExecuted:   true,
	models.EventTypeStopFailed:     true,
	models.EventTypeRetentionSweep: true,
	models.EventTypeAlert:          true,
	models.EventTypeError:          true,
}

// EventHistory is the optional Postgres audit trail. When enabled it
// consumes the full event stream, logs every event, and persists the
// operationally significant ones.
type EventHistory struct {
	db        *sql.DB
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewEventHistory connects to Postgres and ensures the schema exists.
func NewEventHistory(dsn string, eventChan <-chan *models.Event) (*EventHistory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening event history db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging event history db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating event history schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &EventHistory{db: db, eventChan: eventChan, ctx: ctx, cancel: cancel}, nil
}

func (h *EventHistory) Start() {
	go h.run()
}

func (h *EventHistory) Stop() {
	h.cancel()
	h.db.Close()
}

func (h *EventHistory) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case event, ok := <-h.eventChan:
			if !ok {
				return
			}
			h.processEvent(event)
		}
	}
}

func (h *EventHistory) processEvent(event *models.Event) {
	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"pod_id":     event.PodID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})
	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	if !persistedTypes[event.Type] {
		return
	}
	h.persist(event)
}

func (h *EventHistory) persist(event *models.Event) {
	var data []byte
	if event.Data != nil {
		data, _ = json.Marshal(event.Data)
	}

	query := `
		INSERT INTO pod_events (id, type, pod_id, severity, message, trace_id, data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := h.db.ExecContext(h.ctx, query,
		event.ID,
		event.Type,
		event.PodID,
		event.Severity,
		event.Message,
		event.TraceID,
		data,
		event.Timestamp,
	)
	if err != nil {
		logger.Errorf("Failed to persist event %s: %v", event.Type, err)
	}
}

// Recent returns the newest persisted events, optionally filtered to a
// single pod.
func (h *EventHistory) Recent(podID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, type, pod_id, severity, message, trace_id, occurred_at
		FROM pod_events`
	args := []interface{}{}
	if podID != "" {
		query += ` WHERE pod_id = $1`
		args = append(args, podID)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC LIMIT %d`, limit)

	rows, err := h.db.QueryContext(h.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event history: %w", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var podID, traceID sql.NullString
		if err := rows.Scan(&e.ID, &e.Type, &podID, &e.Severity, &e.Message, &traceID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.PodID = podID.String
		e.TraceID = traceID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
