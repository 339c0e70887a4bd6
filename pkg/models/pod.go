package models

import "time"

// PodSnapshot is one pod's state as returned by a single poll of the
// provider API. Stopped pods have no runtime, so every utilization
// field reads zero.
type PodSnapshot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Status           PodStatus `json:"status"`
	ImageName        string    `json:"image_name,omitempty"`
	CostPerHr        float64   `json:"cost_per_hr"`
	UptimeSeconds    int64     `json:"uptime_seconds"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	GPUPercent       float64   `json:"gpu_percent"`
	GPUMemoryPercent float64   `json:"gpu_memory_percent"`
	GPUCount         int       `json:"gpu_count"`
}

// ToMetricRecord stamps the snapshot as a log record at the given time.
func (p PodSnapshot) ToMetricRecord(now time.Time) MetricRecord {
	return MetricRecord{
		Timestamp:        now.Format(time.RFC3339),
		Epoch:            now.Unix(),
		PodID:            p.ID,
		Name:             p.Name,
		Status:           p.Status,
		CostPerHr:        p.CostPerHr,
		UptimeSeconds:    p.UptimeSeconds,
		CPUPercent:       p.CPUPercent,
		MemoryPercent:    p.MemoryPercent,
		GPUPercent:       p.GPUPercent,
		GPUMemoryPercent: p.GPUMemoryPercent,
		GPUCount:         p.GPUCount,
	}
}
