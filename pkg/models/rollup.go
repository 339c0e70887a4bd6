package models

import "time"

// RollupWindow is a fixed-interval aggregate of raw samples whose epoch
// falls in [WindowStartEpoch, WindowEndEpoch). Windows are only written
// once fully elapsed, so the numbers never change after emission.
type RollupWindow struct {
	WindowStart      string    `json:"window_start"`
	WindowEnd        string    `json:"window_end"`
	WindowStartEpoch int64     `json:"window_start_epoch"`
	WindowEndEpoch   int64     `json:"window_end_epoch"`
	IntervalMinutes  int       `json:"interval_minutes"`
	PodID            string    `json:"pod_id"`
	Name             string    `json:"name"`
	Status           PodStatus `json:"status"`
	MetricsCount     int       `json:"metrics_count"`

	CPUAvg float64 `json:"cpu_avg"`
	CPUMin float64 `json:"cpu_min"`
	CPUMax float64 `json:"cpu_max"`

	MemoryAvg float64 `json:"memory_avg"`
	MemoryMin float64 `json:"memory_min"`
	MemoryMax float64 `json:"memory_max"`

	GPUAvg float64 `json:"gpu_avg"`
	GPUMin float64 `json:"gpu_min"`
	GPUMax float64 `json:"gpu_max"`

	CostPerHr   float64 `json:"cost_per_hr"`
	UptimeStart int64   `json:"uptime_start"`
	UptimeEnd   int64   `json:"uptime_end"`
}

// NewRollupWindow aggregates a non-empty, epoch-ordered slice of raw
// records belonging to one bucket.
func NewRollupWindow(podID string, windowStart int64, intervalMinutes int, records []MetricRecord) RollupWindow {
	windowEnd := windowStart + int64(intervalMinutes)*60
	first := records[0]
	last := records[len(records)-1]

	w := RollupWindow{
		WindowStart:      time.Unix(windowStart, 0).Format(time.RFC3339),
		WindowEnd:        time.Unix(windowEnd, 0).Format(time.RFC3339),
		WindowStartEpoch: windowStart,
		WindowEndEpoch:   windowEnd,
		IntervalMinutes:  intervalMinutes,
		PodID:            podID,
		Name:             last.Name,
		Status:           last.Status,
		MetricsCount:     len(records),
		CostPerHr:        last.CostPerHr,
		UptimeStart:      first.UptimeSeconds,
		UptimeEnd:        last.UptimeSeconds,
	}

	w.CPUAvg, w.CPUMin, w.CPUMax = aggregate(records, func(m MetricRecord) float64 { return m.CPUPercent })
	w.MemoryAvg, w.MemoryMin, w.MemoryMax = aggregate(records, func(m MetricRecord) float64 { return m.MemoryPercent })
	w.GPUAvg, w.GPUMin, w.GPUMax = aggregate(records, func(m MetricRecord) float64 { return m.GPUPercent })
	return w
}

func aggregate(records []MetricRecord, field func(MetricRecord) float64) (avg, min, max float64) {
	min = field(records[0])
	max = min
	var total float64
	for _, r := range records {
		v := field(r)
		total += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg = Round2(total / float64(len(records)))
	return avg, Round2(min), Round2(max)
}
