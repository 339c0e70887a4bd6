package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// Compact rolls a pod's raw samples into fixed windows at the given
// resolution (30 or 60 minutes). Only samples newer than the last
// compacted window are considered, which makes re-runs idempotent: with
// no new raw data the second run emits zero windows. A window is only
// emitted once fully elapsed, or once it is more than one full interval
// stale, so emitted aggregates never change.
func (s *Store) Compact(podID string, intervalMinutes int) (windowsCreated, samplesProcessed int, err error) {
	path, err := s.rollupPath(podID, intervalMinutes)
	if err != nil {
		return 0, 0, err
	}

	// One lock for the cursor read and the window appends: concurrent
	// runs (write hook vs cron pass) must not both emit the same window.
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRecords(s.rawPath(podID), ReadOptions{})
	if err != nil {
		return 0, 0, err
	}
	if len(raw) == 0 {
		return 0, 0, nil
	}

	existing, err := s.readRollupsFile(podID, intervalMinutes, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	var lastProcessed int64
	if len(existing) > 0 {
		lastProcessed = existing[len(existing)-1].WindowEndEpoch
	}

	intervalSeconds := int64(intervalMinutes) * 60
	buckets := make(map[int64][]models.MetricRecord)
	for _, rec := range raw {
		if rec.Epoch <= lastProcessed {
			continue
		}
		start := rec.Epoch / intervalSeconds * intervalSeconds
		buckets[start] = append(buckets[start], rec)
		samplesProcessed++
	}
	if samplesProcessed == 0 {
		return 0, 0, nil
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	now := s.nowFn().Unix()
	for _, start := range starts {
		end := start + intervalSeconds
		// Skip the in-progress window unless it has gone stale.
		if end > now && now-start < 2*intervalSeconds {
			continue
		}

		records := buckets[start]
		sort.SliceStable(records, func(i, j int) bool { return records[i].Epoch < records[j].Epoch })

		window := models.NewRollupWindow(podID, start, intervalMinutes, records)
		if err := appendLine(path, window); err != nil {
			return windowsCreated, samplesProcessed, err
		}
		windowsCreated++
	}

	if windowsCreated > 0 {
		logger.WithPod(podID).Debugf("Compacted %d samples into %d %d-minute windows",
			samplesProcessed, windowsCreated, intervalMinutes)
		if err := s.capRollupsLocked(podID, intervalMinutes); err != nil {
			return windowsCreated, samplesProcessed, err
		}
	}
	return windowsCreated, samplesProcessed, nil
}

// AutoCompact runs both resolutions once a pod's raw-sample count
// crosses the threshold, amortizing cost instead of compacting on every
// write.
func (s *Store) AutoCompact(podID string, rawThreshold int) error {
	count, err := s.RawCount(podID)
	if err != nil {
		return err
	}
	if count < rawThreshold {
		return nil
	}

	if _, _, err := s.Compact(podID, 30); err != nil {
		return err
	}
	_, _, err = s.Compact(podID, 60)
	return err
}

// SetRollupCapDays adjusts the rolling cap applied after compaction.
// Defaults to a week when never configured.
func (s *Store) SetRollupCapDays(days int) {
	if days > 0 {
		s.rollupCapDays = days
	}
}

// capRollupsLocked trims the oldest windows so each resolution keeps at
// most rollupCapDays worth of history. Caller holds s.mu.
func (s *Store) capRollupsLocked(podID string, intervalMinutes int) error {
	maxPoints := s.rollupCapDays * 24 * 60 / intervalMinutes

	windows, err := s.readRollupsFile(podID, intervalMinutes, 0, 0)
	if err != nil || len(windows) <= maxPoints {
		return err
	}

	trimmed := windows[len(windows)-maxPoints:]
	lines, err := marshalLines(trimmed)
	if err != nil {
		return err
	}
	path, _ := s.rollupPath(podID, intervalMinutes)
	if err := rewriteLines(path, lines); err != nil {
		return err
	}
	logger.WithPod(podID).Debugf("Trimmed %d old %d-minute windows", len(windows)-maxPoints, intervalMinutes)
	return nil
}

// ReadRollups returns a pod's compacted windows at one resolution,
// keeping any window that overlaps [startEpoch, endEpoch].
func (s *Store) ReadRollups(podID string, intervalMinutes int, startEpoch, endEpoch int64) ([]models.RollupWindow, error) {
	return s.readRollupsFile(podID, intervalMinutes, startEpoch, endEpoch)
}

func (s *Store) readRollupsFile(podID string, intervalMinutes int, startEpoch, endEpoch int64) ([]models.RollupWindow, error) {
	path, err := s.rollupPath(podID, intervalMinutes)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var windows []models.RollupWindow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var w models.RollupWindow
		if err := json.Unmarshal(line, &w); err != nil {
			s.skippedLines.Add(1)
			logger.Warnf("Skipping corrupt rollup line in %s: %v", path, err)
			continue
		}
		if startEpoch > 0 && w.WindowEndEpoch < startEpoch {
			continue
		}
		if endEpoch > 0 && w.WindowStartEpoch > endEpoch {
			continue
		}
		windows = append(windows, w)
	}
	return windows, scanner.Err()
}

// CleanupRaw drops raw samples older than keepRecentHours from a pod's
// shard, once their windows have been compacted. The shared log is not
// touched; retention policy governs that.
func (s *Store) CleanupRaw(podID string, keepRecentHours int) (int, error) {
	cutoff := s.nowFn().Unix() - int64(keepRecentHours)*3600

	// Snapshot and rewrite under one lock so a sample appended in
	// between is never dropped by the rename.
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.readRecords(s.rawPath(podID), ReadOptions{})
	if err != nil {
		return 0, err
	}

	recent := raw[:0]
	for _, rec := range raw {
		if rec.Epoch > cutoff {
			recent = append(recent, rec)
		}
	}
	removed := len(raw) - len(recent)
	if removed == 0 {
		return 0, nil
	}

	lines, err := marshalLines(recent)
	if err != nil {
		return 0, err
	}
	if err := rewriteLines(s.rawPath(podID), lines); err != nil {
		return 0, err
	}
	logger.WithPod(podID).Debugf("Cleaned up %d compacted raw samples", removed)
	return removed, nil
}
