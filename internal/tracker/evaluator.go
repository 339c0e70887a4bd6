package tracker

import "github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"

// IsBelowThreshold reports whether a sample qualifies as idle under the
// thresholds. All three resources must be at or under their ceiling;
// the comparison is inclusive so a pod pinned exactly at the ceiling
// still counts.
func IsBelowThreshold(m models.MetricRecord, t models.Thresholds) bool {
	return m.CPUPercent <= t.MaxCPUPercent &&
		m.GPUPercent <= t.MaxGPUPercent &&
		m.MemoryPercent <= t.MaxMemoryPercent
}

// isFrozen reports whether a sample repeats the previous one exactly.
// A live workload produces jitter in at least one utilization figure;
// bit-identical repeats mean the agent inside the pod stopped updating,
// which the no-change detector treats as idle regardless of level.
func isFrozen(m models.MetricRecord, prev models.LastMetrics) bool {
	cur := models.LastMetrics{CPU: m.CPUPercent, GPU: m.GPUPercent, Memory: m.MemoryPercent}
	return cur.Equal(prev)
}
