package models

// LastMetrics is the utilization snapshot carried on an idle counter
// entry, used by the no-change detector and the dashboard.
type LastMetrics struct {
	CPU    float64 `json:"cpu"`
	GPU    float64 `json:"gpu"`
	Memory float64 `json:"memory"`
}

// Equal reports bit-identical utilization. Frozen monitoring agents
// repeat the exact same float values, so == is the right comparison.
func (l LastMetrics) Equal(o LastMetrics) bool {
	return l.CPU == o.CPU && l.GPU == o.GPU && l.Memory == o.Memory
}

// IdleCounterEntry tracks one pod's consecutive-below-threshold streak.
// It is derived state: the metric log is authoritative and entries can
// always be rebuilt from it.
//
// Invariant: ConsecutiveBelowThreshold > 0 iff FirstBelowEpoch != nil.
type IdleCounterEntry struct {
	ConsecutiveBelowThreshold int         `json:"consecutive_below_threshold"`
	FirstBelowEpoch           *int64      `json:"first_below_epoch"`
	LastCheckEpoch            int64       `json:"last_check_epoch"`
	LastMetrics               LastMetrics `json:"last_metrics"`
	PodName                   string      `json:"pod_name"`
	Status                    PodStatus   `json:"status"`
}

// NewIdleCounterEntry seeds an entry from a sample, starting the streak
// when the sample already qualifies as below threshold.
func NewIdleCounterEntry(m MetricRecord, below bool) *IdleCounterEntry {
	e := &IdleCounterEntry{
		LastCheckEpoch: m.Epoch,
		LastMetrics:    LastMetrics{CPU: m.CPUPercent, GPU: m.GPUPercent, Memory: m.MemoryPercent},
		PodName:        m.Name,
		Status:         m.Status,
	}
	if below {
		epoch := m.Epoch
		e.ConsecutiveBelowThreshold = 1
		e.FirstBelowEpoch = &epoch
	}
	return e
}

// Advance applies one qualifying or disqualifying sample, preserving the
// counter/epoch invariant in both directions.
func (e *IdleCounterEntry) Advance(m MetricRecord, below bool) {
	if below {
		if e.ConsecutiveBelowThreshold == 0 {
			epoch := m.Epoch
			e.FirstBelowEpoch = &epoch
		}
		e.ConsecutiveBelowThreshold++
	} else {
		e.ConsecutiveBelowThreshold = 0
		e.FirstBelowEpoch = nil
	}
	e.LastCheckEpoch = m.Epoch
	e.LastMetrics = LastMetrics{CPU: m.CPUPercent, GPU: m.GPUPercent, Memory: m.MemoryPercent}
	e.PodName = m.Name
	e.Status = m.Status
}

// Thresholds configure idle detection. Comparisons are inclusive: a
// metric exactly at the ceiling counts as idle.
type Thresholds struct {
	MaxCPUPercent    float64 `json:"max_cpu_percent" mapstructure:"max_cpu_percent"`
	MaxGPUPercent    float64 `json:"max_gpu_percent" mapstructure:"max_gpu_percent"`
	MaxMemoryPercent float64 `json:"max_memory_percent" mapstructure:"max_memory_percent"`
	DurationSeconds  int64   `json:"duration" mapstructure:"duration"`
	DetectNoChange   bool    `json:"detect_no_change" mapstructure:"detect_no_change"`
}
