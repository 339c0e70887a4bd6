package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// migrateLegacy converts the original whole-file JSON map format
// ({"pod_id": [records...]}) into the line-delimited log, exactly once.
// Records are merged into the shared log and each pod's shard with a
// presence check, and the legacy file is deleted only after both
// rewrites are durable: a crash at any point leaves the legacy file in
// place and the next start re-runs the merge without duplicating.
func (s *Store) migrateLegacy() error {
	legacyPath := strings.TrimSuffix(s.sharedPath, ".jsonl") + ".json"
	if legacyPath == s.sharedPath {
		return nil
	}

	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: reading legacy metrics file: %v", ErrIO, err)
	}

	var byPod map[string][]models.MetricRecord
	if err := json.Unmarshal(data, &byPod); err != nil {
		// Not the legacy map format; leave the file alone rather than
		// guessing.
		logger.Warnf("Found %s but it is not the legacy metrics format, leaving it in place: %v", legacyPath, err)
		return nil
	}

	shards := make(map[string][]models.MetricRecord, len(byPod))
	var all []models.MetricRecord
	for podID, records := range byPod {
		for _, rec := range records {
			if rec.PodID == "" {
				rec.PodID = podID
			}
			all = append(all, rec)
			shards[rec.PodID] = append(shards[rec.PodID], rec)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Epoch < all[j].Epoch })

	logger.Infof("Migrating %d legacy records from %s to %s", len(all), legacyPath, s.sharedPath)

	if err := s.mergeMigrated(s.sharedPath, all); err != nil {
		return err
	}

	// Fan out to the pod shards so counter rebuild and rollups see the
	// pre-migration history too.
	for podID, records := range shards {
		if err := os.MkdirAll(s.podDir(podID), 0o755); err != nil {
			return fmt.Errorf("%w: creating pod dir: %v", ErrIO, err)
		}
		if err := s.mergeMigrated(s.rawPath(podID), records); err != nil {
			return err
		}
	}

	// Safe to drop the legacy file now that the merges are durable.
	if err := os.Remove(legacyPath); err != nil {
		return fmt.Errorf("%w: removing legacy file: %v", ErrIO, err)
	}

	logger.Infof("Legacy metrics migration complete")
	return nil
}

// mergeMigrated folds records into the log at path, skipping any that
// are already present so re-running the migration never duplicates.
func (s *Store) mergeMigrated(path string, records []models.MetricRecord) error {
	existing, err := s.readRecords(path, ReadOptions{})
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[migrationKey(rec)] = struct{}{}
	}

	merged := existing
	added := 0
	for _, rec := range records {
		if _, ok := seen[migrationKey(rec)]; ok {
			continue
		}
		merged = append(merged, rec)
		added++
	}
	if added == 0 {
		return nil
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Epoch < merged[j].Epoch })

	lines, err := marshalLines(merged)
	if err != nil {
		return err
	}
	return rewriteLines(path, lines)
}

// migrationKey identifies a record for the presence check. One sample
// per pod per poll makes pod+epoch unique in practice.
func migrationKey(rec models.MetricRecord) string {
	return fmt.Sprintf("%s|%d", rec.PodID, rec.Epoch)
}
