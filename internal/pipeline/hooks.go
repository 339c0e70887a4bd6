package pipeline

import (
	"fmt"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

// EventPublisher is the slice of the event bus the pipeline needs.
type EventPublisher interface {
	Publish(event *models.Event)
}

// ValidationHook rejects malformed samples before anything persists.
type ValidationHook struct{}

func (ValidationHook) Name() string { return "validation" }

func (ValidationHook) BeforeWrite(rec *models.MetricRecord) error {
	return rec.Validate()
}

// RoundingHook normalizes utilization and cost figures to two decimal
// places so the on-disk format stays stable across agent versions.
type RoundingHook struct{}

func (RoundingHook) Name() string { return "rounding" }

func (RoundingHook) BeforeWrite(rec *models.MetricRecord) error {
	rec.CPUPercent = models.Round2(rec.CPUPercent)
	rec.MemoryPercent = models.Round2(rec.MemoryPercent)
	rec.GPUPercent = models.Round2(rec.GPUPercent)
	rec.GPUMemoryPercent = models.Round2(rec.GPUMemoryPercent)
	rec.CostPerHr = models.Round2(rec.CostPerHr)
	return nil
}

// CounterHook advances the idle streak once the sample is durable, so
// a crash between append and counter update loses at most one streak
// increment, never a log record.
type CounterHook struct {
	Tracker *tracker.IdleTracker
}

func (CounterHook) Name() string { return "idle_counter" }

func (h CounterHook) AfterWrite(rec models.MetricRecord) error {
	h.Tracker.UpdateCounter(rec)
	return nil
}

// ShardHook mirrors the sample into the pod's own raw log.
type ShardHook struct {
	Store *storage.Store
}

func (ShardHook) Name() string { return "shard" }

func (h ShardHook) AfterWrite(rec models.MetricRecord) error {
	return h.Store.AppendShard(rec)
}

// CompactionHook rolls up the pod's shard once it grows past the
// threshold. Runs after ShardHook so the new sample is counted.
type CompactionHook struct {
	Store     *storage.Store
	Threshold int
}

func (CompactionHook) Name() string { return "compaction" }

func (h CompactionHook) AfterWrite(rec models.MetricRecord) error {
	return h.Store.AutoCompact(rec.PodID, h.Threshold)
}

// SampleEventHook publishes every durable sample on the event bus for
// live dashboard consumers.
type SampleEventHook struct {
	Bus EventPublisher
}

func (SampleEventHook) Name() string { return "sample_event" }

func (h SampleEventHook) AfterWrite(rec models.MetricRecord) error {
	h.Bus.Publish(models.NewEvent(models.EventTypeSampleRecorded, rec.PodID,
		fmt.Sprintf("Sample recorded for %s", rec.Name)).WithData(rec))
	return nil
}

// AlertHook raises a warning event when any resource crosses the alert
// level, e.g. a runaway workload pinning the GPU.
type AlertHook struct {
	Bus   EventPublisher
	Level float64
}

func (AlertHook) Name() string { return "alert" }

func (h AlertHook) AfterWrite(rec models.MetricRecord) error {
	if rec.CPUPercent < h.Level && rec.GPUPercent < h.Level && rec.MemoryPercent < h.Level {
		return nil
	}
	h.Bus.Publish(models.NewEvent(models.EventTypeAlert, rec.PodID,
		fmt.Sprintf("High utilization on %s: cpu=%.1f%% gpu=%.1f%% mem=%.1f%%",
			rec.Name, rec.CPUPercent, rec.GPUPercent, rec.MemoryPercent)).
		WithSeverity(models.SeverityWarning).WithData(rec))
	return nil
}
