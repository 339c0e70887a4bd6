package models

import "time"

// PodStatus is the desired status reported by the RunPod API.
type PodStatus string

const (
	StatusRunning    PodStatus = "RUNNING"
	StatusStopped    PodStatus = "STOPPED"
	StatusExited     PodStatus = "EXITED"
	StatusTerminated PodStatus = "TERMINATED"
	StatusUnknown    PodStatus = "UNKNOWN"
)

// ParsePodStatus maps an API status string onto a known PodStatus,
// defaulting to UNKNOWN for anything unrecognized.
func ParsePodStatus(s string) PodStatus {
	switch PodStatus(s) {
	case StatusRunning, StatusStopped, StatusExited, StatusTerminated:
		return PodStatus(s)
	default:
		return StatusUnknown
	}
}

// MetricRecord is one sample for one pod. Records are immutable once
// written to the log; the JSON field names are the on-disk format and
// must stay compatible with existing data files.
type MetricRecord struct {
	Timestamp        string    `json:"timestamp"`
	Epoch            int64     `json:"epoch"`
	PodID            string    `json:"pod_id"`
	Name             string    `json:"name"`
	Status           PodStatus `json:"status"`
	CostPerHr        float64   `json:"cost_per_hr"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	GPUPercent       float64   `json:"gpu_percent"`
	GPUMemoryPercent float64   `json:"gpu_memory_percent"`
	GPUCount         int       `json:"gpu_count"`
}

// NewMetricRecord stamps a record with the current wall clock.
func NewMetricRecord(podID string) MetricRecord {
	now := time.Now()
	return MetricRecord{
		Timestamp: now.Format(time.RFC3339),
		Epoch:     now.Unix(),
		PodID:     podID,
		Status:    StatusUnknown,
	}
}

// Validate reports whether the record carries the fields every consumer
// depends on. Negative utilization never comes from the API; treat it as
// a malformed sample rather than clamping silently.
func (m MetricRecord) Validate() error {
	switch {
	case m.PodID == "":
		return newValidationError("pod_id")
	case m.Epoch <= 0:
		return newValidationError("epoch")
	case m.CPUPercent < 0 || m.MemoryPercent < 0 || m.GPUPercent < 0 || m.GPUMemoryPercent < 0:
		return newValidationError("utilization")
	case m.CostPerHr < 0:
		return newValidationError("cost_per_hr")
	case m.UptimeSeconds < 0:
		return newValidationError("uptime_seconds")
	}
	return nil
}
