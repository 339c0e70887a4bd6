package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(epoch int64, cpu, gpu, mem float64) MetricRecord {
	return MetricRecord{
		Epoch:         epoch,
		PodID:         "pod-1",
		Name:          "worker",
		Status:        StatusRunning,
		CPUPercent:    cpu,
		GPUPercent:    gpu,
		MemoryPercent: mem,
	}
}

func TestNewIdleCounterEntry(t *testing.T) {
	below := NewIdleCounterEntry(sampleAt(100, 0.5, 0, 0.3), true)
	assert.Equal(t, 1, below.ConsecutiveBelowThreshold)
	require.NotNil(t, below.FirstBelowEpoch)
	assert.Equal(t, int64(100), *below.FirstBelowEpoch)

	above := NewIdleCounterEntry(sampleAt(100, 80, 90, 70), false)
	assert.Equal(t, 0, above.ConsecutiveBelowThreshold)
	assert.Nil(t, above.FirstBelowEpoch)
}

func TestIdleCounterEntry_Advance_StreakGrows(t *testing.T) {
	e := NewIdleCounterEntry(sampleAt(100, 0.5, 0, 0.3), true)
	e.Advance(sampleAt(160, 0.4, 0, 0.2), true)
	e.Advance(sampleAt(220, 0.6, 0, 0.1), true)

	assert.Equal(t, 3, e.ConsecutiveBelowThreshold)
	// First-below epoch must hold the start of the streak, not move.
	assert.Equal(t, int64(100), *e.FirstBelowEpoch)
	assert.Equal(t, int64(220), e.LastCheckEpoch)
}

func TestIdleCounterEntry_Advance_BreachResets(t *testing.T) {
	e := NewIdleCounterEntry(sampleAt(100, 0.5, 0, 0.3), true)
	e.Advance(sampleAt(160, 0.4, 0, 0.2), true)
	e.Advance(sampleAt(220, 90, 95, 80), false)

	assert.Equal(t, 0, e.ConsecutiveBelowThreshold)
	assert.Nil(t, e.FirstBelowEpoch)

	// A new streak restarts the epoch at the new sample.
	e.Advance(sampleAt(280, 0.1, 0, 0.1), true)
	assert.Equal(t, 1, e.ConsecutiveBelowThreshold)
	assert.Equal(t, int64(280), *e.FirstBelowEpoch)
}

func TestIdleCounterEntry_InvariantHolds(t *testing.T) {
	e := NewIdleCounterEntry(sampleAt(100, 50, 50, 50), false)
	inputs := []bool{true, true, false, true, false, false, true, true, true}
	epoch := int64(100)
	for _, below := range inputs {
		epoch += 60
		e.Advance(sampleAt(epoch, 1, 1, 1), below)
		assert.Equal(t, e.ConsecutiveBelowThreshold > 0, e.FirstBelowEpoch != nil)
	}
}

func TestLastMetrics_Equal(t *testing.T) {
	a := LastMetrics{CPU: 42.5, GPU: 0, Memory: 17.1}
	assert.True(t, a.Equal(LastMetrics{CPU: 42.5, GPU: 0, Memory: 17.1}))
	assert.False(t, a.Equal(LastMetrics{CPU: 42.500001, GPU: 0, Memory: 17.1}))
}

func TestMetricRecord_Validate(t *testing.T) {
	valid := sampleAt(100, 1, 2, 3)
	require.NoError(t, valid.Validate())

	noID := valid
	noID.PodID = ""
	assert.ErrorIs(t, noID.Validate(), ErrInvalidMetric)

	noEpoch := valid
	noEpoch.Epoch = 0
	assert.ErrorIs(t, noEpoch.Validate(), ErrInvalidMetric)

	negative := valid
	negative.GPUPercent = -1
	assert.ErrorIs(t, negative.Validate(), ErrInvalidMetric)

	negCost := valid
	negCost.CostPerHr = -0.5
	assert.ErrorIs(t, negCost.Validate(), ErrInvalidMetric)
}

func TestParsePodStatus(t *testing.T) {
	assert.Equal(t, StatusRunning, ParsePodStatus("RUNNING"))
	assert.Equal(t, StatusStopped, ParsePodStatus("STOPPED"))
	assert.Equal(t, StatusUnknown, ParsePodStatus("SOMETHING_NEW"))
	assert.Equal(t, StatusUnknown, ParsePodStatus(""))
}
