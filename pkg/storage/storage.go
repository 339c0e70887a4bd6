// Package storage owns every on-disk schema of the monitor: the shared
// append-only metric log, per-pod sharded logs, compacted rollups, and
// the one-time migration from the legacy whole-file JSON format.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// maxLineSize bounds a single log line; records are a few hundred bytes
// so 1MB means a longer line is corruption, not data.
const maxLineSize = 1 << 20

// Store is the durable metric store rooted at one data directory.
// Appends are single atomic writes; rewrites (compaction, retention)
// go through a temp file and rename so readers never see a half-written
// file. The mutex serializes rewrites against appends; the polling loop
// itself is the only writer of new samples.
type Store struct {
	dataDir    string
	sharedPath string

	mu           sync.Mutex
	skippedLines atomic.Int64

	rollupCapDays int

	nowFn func() time.Time
}

// Open prepares the data directory and runs the legacy-format migration
// once if an old whole-file JSON map is found.
func Open(dataDir, metricsFile string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "pods"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %v", ErrIO, err)
	}

	s := &Store{
		dataDir:       dataDir,
		sharedPath:    filepath.Join(dataDir, metricsFile),
		rollupCapDays: 7,
		nowFn:         time.Now,
	}

	if err := s.migrateLegacy(); err != nil {
		return nil, err
	}
	return s, nil
}

// DataDir returns the root of the store on disk.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Append durably writes one record to the shared log. The write is a
// single line so a crash can lose the record but never expose a partial
// one to readers.
func (s *Store) Append(rec models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLine(s.sharedPath, rec)
}

// AppendShard writes one record to the pod's own raw log. Shards exist
// purely for read locality; the shared log stays the source of truth.
func (s *Store) AppendShard(rec models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.podDir(rec.PodID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating pod dir: %v", ErrIO, err)
	}
	return appendLine(s.rawPath(rec.PodID), rec)
}

// ReadOptions filter a read of raw records. Zero epoch bounds mean
// unbounded; an empty PodID means all pods.
type ReadOptions struct {
	PodID      string
	StartEpoch int64
	EndEpoch   int64
	Limit      int
}

// Read scans the shared log lazily and returns the matching records in
// file order. Corrupt lines are skipped with a warning; they never
// abort the rest of the read.
func (s *Store) Read(opts ReadOptions) ([]models.MetricRecord, error) {
	return s.readRecords(s.sharedPath, opts)
}

// ReadPod reads from the pod's raw shard, so one pod's history never
// pays for scanning the others.
func (s *Store) ReadPod(podID string, opts ReadOptions) ([]models.MetricRecord, error) {
	opts.PodID = ""
	return s.readRecords(s.rawPath(podID), opts)
}

// LatestRecord returns the most recent raw record for a pod, or nil if
// the pod has no shard yet.
func (s *Store) LatestRecord(podID string) (*models.MetricRecord, error) {
	records, err := s.ReadPod(podID, ReadOptions{})
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[len(records)-1], nil
}

// SkippedLines reports how many corrupt log lines have been skipped
// since the store was opened.
func (s *Store) SkippedLines() int64 {
	return s.skippedLines.Load()
}

func (s *Store) readRecords(path string, opts ReadOptions) ([]models.MetricRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	var records []models.MetricRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec models.MetricRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			s.skippedLines.Add(1)
			logger.Warnf("Skipping corrupt metric line in %s: %v", path, err)
			continue
		}

		if opts.PodID != "" && rec.PodID != opts.PodID {
			continue
		}
		if opts.StartEpoch > 0 && rec.Epoch < opts.StartEpoch {
			continue
		}
		if opts.EndEpoch > 0 && rec.Epoch > opts.EndEpoch {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("%w: scanning %s: %v", ErrIO, path, err)
	}

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[len(records)-opts.Limit:]
	}
	return records, nil
}

func (s *Store) podDir(podID string) string {
	return filepath.Join(s.dataDir, "pods", podID)
}

func appendLine(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: marshaling record: %v", ErrIO, err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: appending to %s: %v", ErrIO, path, err)
	}
	return nil
}

// rewriteLines atomically replaces path with the given JSON lines. An
// empty set removes the file instead of leaving a zero-byte husk.
func rewriteLines(path string, lines [][]byte) error {
	if len(lines) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", ErrIO, path, err)
		}
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrIO, tmp, err)
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: flushing %s: %v", ErrIO, tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: closing %s: %v", ErrIO, tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replacing %s: %v", ErrIO, path, err)
	}
	return nil
}

func marshalLines[T any](items []T) ([][]byte, error) {
	lines := make([][]byte, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%w: marshaling record: %v", ErrIO, err)
		}
		lines = append(lines, data)
	}
	return lines, nil
}
