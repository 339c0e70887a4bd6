package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

func testThresholds() models.Thresholds {
	return models.Thresholds{
		MaxCPUPercent:    1.0,
		MaxGPUPercent:    1.0,
		MaxMemoryPercent: 1.0,
		DurationSeconds:  120,
	}
}

func newTestTracker(t *testing.T) (*IdleTracker, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), "pod_metrics.jsonl")
	require.NoError(t, err)
	tr, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	return tr, store
}

func trackerNow(t *testing.T, tr *IdleTracker, epoch int64) {
	t.Helper()
	tr.nowFn = func() time.Time { return time.Unix(epoch, 0) }
}

func sample(podID string, epoch int64, cpu float64) models.MetricRecord {
	return models.MetricRecord{
		Timestamp:  time.Unix(epoch, 0).Format(time.RFC3339),
		Epoch:      epoch,
		PodID:      podID,
		Name:       podID + "-name",
		Status:     models.StatusRunning,
		CPUPercent: cpu,
	}
}

func TestUpdateCounter_StreakAndReset(t *testing.T) {
	tr, _ := newTestTracker(t)

	entry := tr.UpdateCounter(sample("pod-a", 100, 0.5))
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.ConsecutiveBelowThreshold)
	require.NotNil(t, entry.FirstBelowEpoch)
	assert.Equal(t, int64(100), *entry.FirstBelowEpoch)

	entry = tr.UpdateCounter(sample("pod-a", 160, 0.2))
	assert.Equal(t, 2, entry.ConsecutiveBelowThreshold)
	assert.Equal(t, int64(100), *entry.FirstBelowEpoch)

	// Breach resets streak and epoch together.
	entry = tr.UpdateCounter(sample("pod-a", 220, 55))
	assert.Zero(t, entry.ConsecutiveBelowThreshold)
	assert.Nil(t, entry.FirstBelowEpoch)

	// Streak restarts from the next idle sample.
	entry = tr.UpdateCounter(sample("pod-a", 280, 0.1))
	assert.Equal(t, 1, entry.ConsecutiveBelowThreshold)
	assert.Equal(t, int64(280), *entry.FirstBelowEpoch)
}

func TestUpdateCounter_NonRunningDropsEntry(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.UpdateCounter(sample("pod-a", 100, 0.5))
	_, ok := tr.Entry("pod-a")
	require.True(t, ok)

	stopped := sample("pod-a", 160, 0.5)
	stopped.Status = models.StatusExited
	assert.Nil(t, tr.UpdateCounter(stopped))

	_, ok = tr.Entry("pod-a")
	assert.False(t, ok)
}

func TestUpdateCounter_ExcludedDropsEntry(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.UpdateCounter(sample("pod-a", 100, 0.5))
	tr.SetExclusions([]string{"pod-a"}, nil)

	assert.Nil(t, tr.UpdateCounter(sample("pod-a", 160, 0.5)))
	_, ok := tr.Entry("pod-a")
	assert.False(t, ok)
}

func TestExcluded_IncludeListIsAllowList(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.SetExclusions([]string{"pod-banned"}, []string{"pod-a", "pod-b-name"})

	assert.False(t, tr.Excluded("pod-a", "pod-a-name"))
	assert.False(t, tr.Excluded("pod-b", "pod-b-name"))
	// Not on the include list.
	assert.True(t, tr.Excluded("pod-c", "pod-c-name"))
	// Exclude wins even over the include list.
	tr.SetExclusions([]string{"pod-a"}, []string{"pod-a"})
	assert.True(t, tr.Excluded("pod-a", "pod-a-name"))
}

func TestPruneExclusions(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.SetExclusions([]string{"pod-live", "pod-gone", "live-name"}, nil)

	removed := tr.PruneExclusions(map[string]bool{
		"pod-live":  true,
		"live-name": true,
	})
	assert.Equal(t, []string{"pod-gone"}, removed)
	assert.True(t, tr.Excluded("pod-live", ""))
	assert.False(t, tr.Excluded("pod-gone", ""))
}

func TestUpdateCounter_NoChangeDetection(t *testing.T) {
	tr, _ := newTestTracker(t)
	th := testThresholds()
	th.DetectNoChange = true
	tr.SetThresholds(th)

	// Above threshold but bit-identical across samples: a frozen feed.
	busy := sample("pod-a", 100, 87.3)
	entry := tr.UpdateCounter(busy)
	assert.Zero(t, entry.ConsecutiveBelowThreshold)

	frozen := busy
	frozen.Epoch = 160
	entry = tr.UpdateCounter(frozen)
	assert.Equal(t, 1, entry.ConsecutiveBelowThreshold)

	// Any jitter breaks the frozen streak again.
	jitter := busy
	jitter.Epoch = 220
	jitter.CPUPercent = 87.4
	entry = tr.UpdateCounter(jitter)
	assert.Zero(t, entry.ConsecutiveBelowThreshold)
}

// The canonical auto-stop timeline: samples at T, T+60, T+120, T+180
// with a 180s idle duration and 3 minimum data points. The sample-count
// gate is met at T+120 but the wall-clock gate only at T+180.
func TestCheckAutoStop_Timeline(t *testing.T) {
	tr, _ := newTestTracker(t)
	th := testThresholds()
	th.DurationSeconds = 180
	tr.SetThresholds(th)
	const start = int64(10_000)

	steps := []struct {
		offset int64
		want   bool
	}{
		{0, false},   // streak 1, idle 0s
		{60, false},  // streak 2, idle 60s
		{120, false}, // streak 3, idle 120s
		{180, true},  // streak 4, idle 180s
	}
	for _, step := range steps {
		epoch := start + step.offset
		tr.UpdateCounter(sample("pod-a", epoch, 0.5))
		trackerNow(t, tr, epoch)
		ok, entry := tr.CheckAutoStop("pod-a")
		require.NotNil(t, entry)
		assert.Equal(t, step.want, ok, "offset %d", step.offset)
	}
}

func TestCheckAutoStop_RequiresMinDataPoints(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.UpdateCounter(sample("pod-a", 100, 0.5))
	// Wall clock is long past the duration, but only one sample exists.
	trackerNow(t, tr, 100+3600)
	ok, _ := tr.CheckAutoStop("pod-a")
	assert.False(t, ok)
}

func TestCheckAutoStop_ExclusionIsHardGate(t *testing.T) {
	tr, _ := newTestTracker(t)

	for i := int64(0); i < 4; i++ {
		tr.UpdateCounter(sample("pod-a", 100+i*60, 0.5))
	}
	trackerNow(t, tr, 100+300)
	ok, _ := tr.CheckAutoStop("pod-a")
	require.True(t, ok)

	// Excluding the pod mid-streak blocks the stop even though the
	// entry still exists.
	tr.SetExclusions([]string{"pod-a"}, nil)
	ok, _ = tr.CheckAutoStop("pod-a")
	assert.False(t, ok)
}

func TestAllAutoStopCandidates(t *testing.T) {
	tr, _ := newTestTracker(t)

	for i := int64(0); i < 4; i++ {
		tr.UpdateCounter(sample("pod-idle", 100+i*60, 0.5))
		tr.UpdateCounter(sample("pod-busy", 100+i*60, 80))
	}
	trackerNow(t, tr, 100+300)

	candidates := tr.AllAutoStopCandidates()
	require.Len(t, candidates, 1)
	assert.Equal(t, "pod-idle", candidates[0].PodID)
	assert.Equal(t, 300*time.Second, candidates[0].IdleFor)
}

func TestResetCounter(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.UpdateCounter(sample("pod-a", 100, 0.5))
	tr.ResetCounter("pod-a")
	_, ok := tr.Entry("pod-a")
	assert.False(t, ok)
}

func TestInitializeFromLog_RebuildsStreak(t *testing.T) {
	tr, store := newTestTracker(t)
	trackerNow(t, tr, 1000)

	// Busy sample breaks the streak; the three after it are idle.
	require.NoError(t, store.AppendShard(sample("pod-a", 880, 90)))
	for _, epoch := range []int64{900, 940, 980} {
		require.NoError(t, store.AppendShard(sample("pod-a", epoch, 0.3)))
	}

	require.NoError(t, tr.InitializeFromLog("pod-a"))
	entry, ok := tr.Entry("pod-a")
	require.True(t, ok)
	assert.Equal(t, 3, entry.ConsecutiveBelowThreshold)
	require.NotNil(t, entry.FirstBelowEpoch)
	assert.Equal(t, int64(900), *entry.FirstBelowEpoch)

	// Rebuilding from an unchanged log is idempotent.
	require.NoError(t, tr.InitializeFromLog("pod-a"))
	again, _ := tr.Entry("pod-a")
	assert.Equal(t, entry, again)
}

func TestInitializeFromLog_StopsAtNonRunningSample(t *testing.T) {
	tr, store := newTestTracker(t)
	trackerNow(t, tr, 1000)

	// A stopped sample inside the window is idle by utilization but
	// must end the walk: only the streak since the restart counts.
	stopped := sample("pod-a", 880, 0.3)
	stopped.Status = models.StatusStopped
	require.NoError(t, store.AppendShard(stopped))
	for _, epoch := range []int64{900, 940, 980} {
		require.NoError(t, store.AppendShard(sample("pod-a", epoch, 0.3)))
	}

	require.NoError(t, tr.InitializeFromLog("pod-a"))
	entry, ok := tr.Entry("pod-a")
	require.True(t, ok)
	assert.Equal(t, 3, entry.ConsecutiveBelowThreshold)
	require.NotNil(t, entry.FirstBelowEpoch)
	assert.Equal(t, int64(900), *entry.FirstBelowEpoch)
}

func TestInitializeFromLog_NonRunningLatest(t *testing.T) {
	tr, store := newTestTracker(t)
	trackerNow(t, tr, 1000)

	require.NoError(t, store.AppendShard(sample("pod-a", 900, 0.3)))
	stopped := sample("pod-a", 960, 0.3)
	stopped.Status = models.StatusExited
	require.NoError(t, store.AppendShard(stopped))

	tr.UpdateCounter(sample("pod-a", 800, 0.5))
	require.NoError(t, tr.InitializeFromLog("pod-a"))
	_, ok := tr.Entry("pod-a")
	assert.False(t, ok)
}

func TestInitializeFromLog_AfterLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	legacyData := `{"pod-a": [
		{"epoch": 900, "name": "pod-a-name", "status": "RUNNING", "cpu_percent": 0.3},
		{"epoch": 940, "name": "pod-a-name", "status": "RUNNING", "cpu_percent": 0.2},
		{"epoch": 980, "name": "pod-a-name", "status": "RUNNING", "cpu_percent": 0.4}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pod_metrics.json"), []byte(legacyData), 0o644))

	store, err := storage.Open(dir, "pod_metrics.jsonl")
	require.NoError(t, err)
	tr, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	trackerNow(t, tr, 1000)

	// Pre-migration history must be visible to the rebuild.
	require.NoError(t, tr.InitializeFromLog("pod-a"))
	entry, ok := tr.Entry("pod-a")
	require.True(t, ok)
	assert.Equal(t, 3, entry.ConsecutiveBelowThreshold)
	require.NotNil(t, entry.FirstBelowEpoch)
	assert.Equal(t, int64(900), *entry.FirstBelowEpoch)
}

func TestCleanupStale(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.UpdateCounter(sample("pod-old", 100, 0.5))
	tr.UpdateCounter(sample("pod-new", 9000, 0.5))
	trackerNow(t, tr, 10_000)

	removed := tr.CleanupStale(time.Hour)
	assert.Equal(t, 1, removed)
	_, ok := tr.Entry("pod-old")
	assert.False(t, ok)
	_, ok = tr.Entry("pod-new")
	assert.True(t, ok)
}

func TestSaveIfDirty_Roundtrip(t *testing.T) {
	store, err := storage.Open(t.TempDir(), "pod_metrics.jsonl")
	require.NoError(t, err)

	tr, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	tr.UpdateCounter(sample("pod-a", 100, 0.5))
	tr.UpdateCounter(sample("pod-a", 160, 0.5))
	require.NoError(t, tr.SaveIfDirty())

	// A second save with nothing new is a no-op even if the file is
	// deleted underneath.
	require.NoError(t, tr.SaveIfDirty())

	reloaded, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	entry, ok := reloaded.Entry("pod-a")
	require.True(t, ok)
	assert.Equal(t, 2, entry.ConsecutiveBelowThreshold)
	require.NotNil(t, entry.FirstBelowEpoch)
	assert.Equal(t, int64(100), *entry.FirstBelowEpoch)
}

func TestLoad_DropsInconsistentEntries(t *testing.T) {
	store, err := storage.Open(t.TempDir(), "pod_metrics.jsonl")
	require.NoError(t, err)

	tr, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	tr.UpdateCounter(sample("pod-ok", 100, 0.5))

	// Corrupt a second entry by hand: positive streak, nil epoch.
	tr.mu.Lock()
	tr.counters["pod-bad"] = &models.IdleCounterEntry{ConsecutiveBelowThreshold: 5}
	tr.dirty = true
	tr.mu.Unlock()
	require.NoError(t, tr.SaveIfDirty())

	reloaded, err := New(store, testThresholds(), 3)
	require.NoError(t, err)
	_, ok := reloaded.Entry("pod-ok")
	assert.True(t, ok)
	_, ok = reloaded.Entry("pod-bad")
	assert.False(t, ok)
}

func TestIsBelowThreshold_Inclusive(t *testing.T) {
	th := testThresholds()

	atCeiling := sample("pod-a", 100, 1.0)
	assert.True(t, IsBelowThreshold(atCeiling, th))

	over := sample("pod-a", 100, 1.01)
	assert.False(t, IsBelowThreshold(over, th))

	gpuBusy := sample("pod-a", 100, 0.5)
	gpuBusy.GPUPercent = 50
	assert.False(t, IsBelowThreshold(gpuBusy, th))
}
