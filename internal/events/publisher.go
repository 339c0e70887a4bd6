package events

import (
	"fmt"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// Publisher wraps the bus with domain-shaped publish methods. A trace
// ID can be attached for request-scoped publishing from the API layer.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	return &Publisher{bus: p.bus, traceID: traceID}
}

func (p *Publisher) Publish(event *models.Event) {
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) PodIdle(podID string, entry models.IdleCounterEntry) {
	event := models.NewEvent(models.EventTypePodIdle, podID,
		fmt.Sprintf("Pod %s qualifies for auto-stop", entry.PodName)).
		WithData(entry)
	p.Publish(event)
}

func (p *Publisher) StopExecuted(podID, name string, costPerHr float64) {
	event := models.NewEvent(models.EventTypeStopExecuted, podID,
		fmt.Sprintf("Stopped idle pod %s (saving $%.2f/hr)", name, costPerHr)).
		WithSeverity(models.SeverityWarning)
	p.Publish(event)
}

func (p *Publisher) StopFailed(podID, name string, err error) {
	event := models.NewEvent(models.EventTypeStopFailed, podID,
		fmt.Sprintf("Failed to stop pod %s", name)).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{"error": err.Error()})
	p.Publish(event)
}

func (p *Publisher) Compaction(podID string, windows, samples, intervalMinutes int) {
	event := models.NewEvent(models.EventTypeCompaction, podID,
		fmt.Sprintf("Compacted %d samples into %d %d-minute windows", samples, windows, intervalMinutes))
	p.Publish(event)
}

func (p *Publisher) RetentionSweep(sharedRemoved, shardsRemoved int) {
	event := models.NewEvent(models.EventTypeRetentionSweep, "",
		fmt.Sprintf("Retention sweep removed %d shared and %d shard records", sharedRemoved, shardsRemoved))
	p.Publish(event)
}

func (p *Publisher) Error(podID, message string, err error) {
	event := models.NewEvent(models.EventTypeError, podID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{"error": err.Error()})
	p.Publish(event)
}
