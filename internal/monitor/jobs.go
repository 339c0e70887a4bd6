package monitor

import (
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
)

// scheduleJobs registers the background maintenance jobs. Each runs on
// its own cron spec so operators can stagger them away from busy hours.
func (m *Monitor) scheduleJobs() error {
	schedules := m.cfg.Schedules

	if _, err := m.cron.AddFunc(schedules.RetentionSweep, m.runRetentionSweep); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(schedules.Compaction, m.runCompaction); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(schedules.StaleCleanup, m.runStaleCleanup); err != nil {
		return err
	}
	return nil
}

func (m *Monitor) runRetentionSweep() {
	res, err := m.store.Sweep(m.cfg.Storage.Retention)
	if err != nil {
		m.publisher.Error("", "Retention sweep failed", err)
		return
	}
	if res.SharedRemoved == 0 && res.ShardsRemoved == 0 {
		return
	}
	if m.metrics != nil {
		m.metrics.RetentionRemoved.Add(float64(res.SharedRemoved + res.ShardsRemoved))
	}
	m.publisher.RetentionSweep(res.SharedRemoved, res.ShardsRemoved)
}

// runCompaction sweeps every pod shard through both rollup resolutions.
// The write-path compaction hook handles the hot pods; this pass picks
// up pods that stopped receiving samples below the threshold.
func (m *Monitor) runCompaction() {
	pods, err := m.store.Pods()
	if err != nil {
		m.publisher.Error("", "Compaction pass failed to list pods", err)
		return
	}

	for _, podID := range pods {
		compacted := false
		for _, interval := range []int{30, 60} {
			windows, samples, err := m.store.Compact(podID, interval)
			if err != nil {
				logger.WithPod(podID).WithError(err).Warn("Compaction failed")
				continue
			}
			if windows == 0 {
				continue
			}
			compacted = true
			if m.metrics != nil {
				m.metrics.CompactionWindows.Add(float64(windows))
			}
			m.publisher.Compaction(podID, windows, samples, interval)
		}

		// Trim raw history now represented in the rollups.
		if compacted {
			if _, err := m.store.CleanupRaw(podID, m.cfg.Storage.RawKeepHours); err != nil {
				logger.WithPod(podID).WithError(err).Warn("Raw cleanup failed")
			}
		}
	}
}

func (m *Monitor) runStaleCleanup() {
	maxAge := m.cfg.Storage.StaleCounterAge
	if maxAge <= 0 {
		return
	}
	m.tracker.CleanupStale(maxAge)
}
