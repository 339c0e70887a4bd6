package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// EventBridge forwards monitor events onto websocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forwardEvent(event)
		}
	}
}

// WebSocketEvent is the message format sent to clients.
type WebSocketEvent struct {
	Type      string      `json:"type"`
	PodID     string      `json:"pod_id"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func (b *EventBridge) forwardEvent(event *models.Event) {
	wsType := mapEventType(event.Type)
	if wsType == "" {
		return
	}

	data, err := json.Marshal(WebSocketEvent{
		Type:      wsType,
		PodID:     event.PodID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	})
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	b.hub.BroadcastToPod(event.PodID, data)
}

func mapEventType(eventType models.EventType) string {
	switch eventType {
	case models.EventTypeSampleRecorded:
		return "sample"
	case models.EventTypePodIdle:
		return "pod_idle"
	case models.EventTypeStopExecuted:
		return "stop_executed"
	case models.EventTypeStopFailed:
		return "stop_failed"
	case models.EventTypeAlert:
		return "alert"
	case models.EventTypeError:
		return "error"
	default:
		// Compaction and retention chatter stays off the wire.
		return ""
	}
}
