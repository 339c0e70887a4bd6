package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
)

const (
	rawFile       = "metrics_raw.jsonl"
	rollup30File  = "metrics_30min.jsonl"
	rollup60File  = "metrics_1hour.jsonl"
)

func (s *Store) rawPath(podID string) string {
	return filepath.Join(s.podDir(podID), rawFile)
}

func (s *Store) rollupPath(podID string, intervalMinutes int) (string, error) {
	switch intervalMinutes {
	case 30:
		return filepath.Join(s.podDir(podID), rollup30File), nil
	case 60:
		return filepath.Join(s.podDir(podID), rollup60File), nil
	default:
		return "", fmt.Errorf("%w: %d minutes", ErrUnsupportedInterval, intervalMinutes)
	}
}

// Pods lists every pod that has a raw shard on disk.
func (s *Store) Pods() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "pods"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: listing pod shards: %v", ErrIO, err)
	}

	var pods []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.rawPath(e.Name())); err == nil {
			pods = append(pods, e.Name())
		}
	}
	return pods, nil
}

// RawCount counts a pod's raw samples without decoding them, used by
// the compaction trigger.
func (s *Store) RawCount(podID string) (int, error) {
	f, err := os.Open(s.rawPath(podID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: opening raw shard: %v", ErrIO, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}

// RemovePod deletes a pod's shard directory. Used when a terminated
// pod's history is explicitly discarded.
func (s *Store) RemovePod(podID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.podDir(podID)); err != nil {
		return fmt.Errorf("%w: removing pod shard: %v", ErrIO, err)
	}
	logger.WithPod(podID).Info("Removed pod metrics shard")
	return nil
}
