// Package events carries monitoring occurrences from the poll loop to
// the dashboard and the optional audit sink. Publishing never blocks:
// a slow consumer drops events rather than stalling the monitor.
package events

import (
	"sync"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

type EventBus struct {
	subscribers map[models.EventType][]chan *models.Event
	allChans    []chan *models.Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &EventBus{
		subscribers: make(map[models.EventType][]chan *models.Event),
		bufferSize:  bufferSize,
	}
}

func (b *EventBus) Subscribe(eventType models.EventType) <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *models.Event, b.bufferSize)
	for _, eventType := range allEventTypes() {
		b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	}
	b.allChans = append(b.allChans, ch)
	return ch
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			logger.Warnf("Event channel full, dropping event: %s", event.Type)
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	closedChans := make(map[chan *models.Event]bool)
	for _, ch := range b.allChans {
		close(ch)
		closedChans[ch] = true
	}
	for _, subscribers := range b.subscribers {
		for _, ch := range subscribers {
			if !closedChans[ch] {
				close(ch)
				closedChans[ch] = true
			}
		}
	}

	b.subscribers = make(map[models.EventType][]chan *models.Event)
	b.allChans = nil
}

func allEventTypes() []models.EventType {
	return []models.EventType{
		models.EventTypeSampleRecorded,
		models.EventTypePodIdle,
		models.EventTypeStopExecuted,
		models.EventTypeStopFailed,
		models.EventTypeCompaction,
		models.EventTypeRetentionSweep,
		models.EventTypeAlert,
		models.EventTypeError,
	}
}
