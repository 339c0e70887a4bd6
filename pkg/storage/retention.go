package storage

import (
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	SharedRemoved int
	ShardsRemoved int
	PodsDropped   int
}

// Sweep deletes records older than the retention policy from the shared
// log and from every pod's raw shard. Rewrites are atomic, so a crash
// mid-sweep leaves each file either untouched or fully swept. A forever
// policy makes the whole pass a no-op.
func (s *Store) Sweep(policy models.RetentionPolicy) (SweepResult, error) {
	var res SweepResult
	if policy.Forever() {
		return res, nil
	}

	cutoff := s.nowFn().Unix() - policy.Seconds()

	removed, err := s.sweepFile(s.sharedPath, cutoff)
	if err != nil {
		return res, err
	}
	res.SharedRemoved = removed

	pods, err := s.Pods()
	if err != nil {
		return res, err
	}
	for _, podID := range pods {
		removed, err := s.sweepFile(s.rawPath(podID), cutoff)
		if err != nil {
			return res, err
		}
		res.ShardsRemoved += removed
		if removed > 0 {
			// A fully expired shard means the rollups are equally old;
			// drop the whole pod directory.
			if count, err := s.RawCount(podID); err == nil && count == 0 {
				if err := s.RemovePod(podID); err != nil {
					return res, err
				}
				res.PodsDropped++
			}
		}
	}

	if res.SharedRemoved > 0 || res.ShardsRemoved > 0 {
		logger.WithField("policy", policy.String()).Infof(
			"Retention sweep removed %d shared and %d shard records", res.SharedRemoved, res.ShardsRemoved)
	}
	return res, nil
}

// sweepFile rewrites one log keeping only records at or after the
// cutoff. Corrupt lines are dropped along with the expired ones; they
// carry no epoch to keep them by. The lock covers the whole
// read-rewrite sequence: a record appended after the snapshot would
// otherwise vanish in the rename.
func (s *Store) sweepFile(path string, cutoff int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readRecords(path, ReadOptions{})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	kept := records[:0]
	for _, rec := range records {
		if rec.Epoch >= cutoff {
			kept = append(kept, rec)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	lines, err := marshalLines(kept)
	if err != nil {
		return 0, err
	}
	if err := rewriteLines(path, lines); err != nil {
		return 0, err
	}
	return removed, nil
}
