// Package tracker maintains the per-pod idle counters that decide when
// a pod has been idle long enough to stop. Counters are derived state:
// the metric log is authoritative and the tracker can rebuild itself
// from it after a restart or a corrupted counter file.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

const countersFile = "auto_stop_counters.json"

// Candidate is a pod whose idle streak satisfies both the sample-count
// and the wall-clock duration requirements.
type Candidate struct {
	PodID   string
	Entry   models.IdleCounterEntry
	IdleFor time.Duration
}

// IdleTracker answers "has this pod been idle long enough" in O(1) per
// pod. It keeps one counter entry per RUNNING, non-excluded pod and
// persists them so a restart does not reset every streak.
type IdleTracker struct {
	store *storage.Store

	mu            sync.RWMutex
	counters      map[string]*models.IdleCounterEntry
	thresholds    models.Thresholds
	minDataPoints int
	excludePods   []string
	includePods   []string
	dirty         bool

	countersPath string
	nowFn        func() time.Time
}

// New creates a tracker rooted in the store's data directory and loads
// any previously persisted counters.
func New(store *storage.Store, thresholds models.Thresholds, minDataPoints int) (*IdleTracker, error) {
	t := &IdleTracker{
		store:         store,
		counters:      make(map[string]*models.IdleCounterEntry),
		thresholds:    thresholds,
		minDataPoints: minDataPoints,
		countersPath:  filepath.Join(store.DataDir(), countersFile),
		nowFn:         time.Now,
	}
	if t.minDataPoints <= 0 {
		t.minDataPoints = 3
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// SetThresholds swaps the idle thresholds at runtime. Existing streaks
// are kept; the next sample is judged under the new values.
func (t *IdleTracker) SetThresholds(th models.Thresholds) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thresholds = th
	t.dirty = true
}

// Thresholds returns the current idle thresholds.
func (t *IdleTracker) Thresholds() models.Thresholds {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.thresholds
}

// SetExclusions replaces the exclusion and inclusion lists. A non-empty
// include list acts as an allow-list; the exclude list always wins.
func (t *IdleTracker) SetExclusions(exclude, include []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.excludePods = append([]string(nil), exclude...)
	t.includePods = append([]string(nil), include...)
}

// PruneExclusions drops exclusion entries that match no live pod id or
// name, so the list does not accumulate terminated pods forever. It
// returns the removed entries.
func (t *IdleTracker) PruneExclusions(livePods map[string]bool) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var kept, removed []string
	for _, e := range t.excludePods {
		if livePods[e] {
			kept = append(kept, e)
		} else {
			removed = append(removed, e)
		}
	}
	if len(removed) > 0 {
		t.excludePods = kept
		logger.Infof("Pruned %d exclusion entries for missing pods: %v", len(removed), removed)
	}
	return removed
}

// Excluded reports whether a pod must never be auto-stopped. Matching
// is by pod ID or by name so an operator can protect a pod either way.
func (t *IdleTracker) Excluded(podID, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.excludedLocked(podID, name)
}

func (t *IdleTracker) excludedLocked(podID, name string) bool {
	for _, e := range t.excludePods {
		if e == podID || e == name {
			return true
		}
	}
	if len(t.includePods) > 0 {
		for _, i := range t.includePods {
			if i == podID || i == name {
				return false
			}
		}
		return true
	}
	return false
}

// UpdateCounter applies one durably written sample to the pod's streak.
// Non-running and excluded pods have their entry removed so a stale
// streak can never trigger a stop after the pod's situation changes.
// It returns the entry after the update, or nil when none is tracked.
func (t *IdleTracker) UpdateCounter(rec models.MetricRecord) *models.IdleCounterEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.Status != models.StatusRunning || t.excludedLocked(rec.PodID, rec.Name) {
		if _, ok := t.counters[rec.PodID]; ok {
			delete(t.counters, rec.PodID)
			t.dirty = true
		}
		return nil
	}

	below := IsBelowThreshold(rec, t.thresholds)

	entry, ok := t.counters[rec.PodID]
	if !ok {
		entry = models.NewIdleCounterEntry(rec, below)
		t.counters[rec.PodID] = entry
		t.dirty = true
		return entry
	}

	// A frozen stats feed counts as idle even above threshold: the
	// workload is not producing new numbers, only the agent's last
	// reading repeated.
	if !below && t.thresholds.DetectNoChange && isFrozen(rec, entry.LastMetrics) {
		below = true
	}

	entry.Advance(rec, below)
	t.dirty = true
	return entry
}

// CheckAutoStop reports whether a pod currently qualifies for an
// automatic stop. Both gates must hold: at least minDataPoints
// consecutive idle samples, and a wall-clock idle span of at least the
// configured duration. The exclusion list is re-checked here as a hard
// safety net even though excluded pods should never have an entry.
func (t *IdleTracker) CheckAutoStop(podID string) (bool, *models.IdleCounterEntry) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.counters[podID]
	if !ok {
		return false, nil
	}
	if t.excludedLocked(podID, entry.PodName) {
		return false, entry
	}
	return t.qualifiesLocked(entry), entry
}

func (t *IdleTracker) qualifiesLocked(entry *models.IdleCounterEntry) bool {
	if entry.ConsecutiveBelowThreshold < t.minDataPoints || entry.FirstBelowEpoch == nil {
		return false
	}
	idleFor := t.nowFn().Unix() - *entry.FirstBelowEpoch
	return idleFor >= t.thresholds.DurationSeconds
}

// AllAutoStopCandidates returns every pod that qualifies for a stop,
// sorted by nothing in particular; the caller stops them all anyway.
func (t *IdleTracker) AllAutoStopCandidates() []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Candidate
	now := t.nowFn().Unix()
	for podID, entry := range t.counters {
		if t.excludedLocked(podID, entry.PodName) {
			continue
		}
		if !t.qualifiesLocked(entry) {
			continue
		}
		out = append(out, Candidate{
			PodID:   podID,
			Entry:   *entry,
			IdleFor: time.Duration(now-*entry.FirstBelowEpoch) * time.Second,
		})
	}
	return out
}

// ResetCounter clears a pod's streak, e.g. after a manual resume.
func (t *IdleTracker) ResetCounter(podID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.counters[podID]; ok {
		delete(t.counters, podID)
		t.dirty = true
	}
}

// Entry returns a copy of a pod's counter entry, if tracked.
func (t *IdleTracker) Entry(podID string) (models.IdleCounterEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.counters[podID]
	if !ok {
		return models.IdleCounterEntry{}, false
	}
	return *entry, true
}

// Counters returns a snapshot of every tracked entry for the dashboard.
func (t *IdleTracker) Counters() map[string]models.IdleCounterEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.IdleCounterEntry, len(t.counters))
	for podID, entry := range t.counters {
		out[podID] = *entry
	}
	return out
}

// InitializeFromLog rebuilds a pod's streak from its raw shard by
// walking backwards from the newest sample until a sample breaks the
// streak or falls outside the idle-duration window. Re-running it
// against an unchanged log yields the same entry.
func (t *IdleTracker) InitializeFromLog(podID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	windowStart := t.nowFn().Unix() - t.thresholds.DurationSeconds
	records, err := t.store.ReadPod(podID, storage.ReadOptions{StartEpoch: windowStart})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	latest := records[len(records)-1]
	if latest.Status != models.StatusRunning || t.excludedLocked(podID, latest.Name) {
		delete(t.counters, podID)
		t.dirty = true
		return nil
	}

	streak := 0
	var firstBelow *int64
	for i := len(records) - 1; i >= 0; i-- {
		// A non-RUNNING sample ends the streak just as it would have
		// live, where the entry is deleted and restarted from scratch.
		if records[i].Status != models.StatusRunning || !IsBelowThreshold(records[i], t.thresholds) {
			break
		}
		epoch := records[i].Epoch
		firstBelow = &epoch
		streak++
	}

	entry := models.NewIdleCounterEntry(latest, false)
	entry.ConsecutiveBelowThreshold = streak
	entry.FirstBelowEpoch = firstBelow
	t.counters[podID] = entry
	t.dirty = true

	logger.WithPod(podID).Debugf("Rebuilt idle counter from log: streak=%d", streak)
	return nil
}

// InitializeAllFromLog rebuilds counters for every pod with a shard.
func (t *IdleTracker) InitializeAllFromLog() error {
	pods, err := t.store.Pods()
	if err != nil {
		return err
	}
	for _, podID := range pods {
		if err := t.InitializeFromLog(podID); err != nil {
			return err
		}
	}
	return nil
}

// CleanupStale drops entries whose last check is older than maxAge,
// covering pods that were terminated outside the monitor's view.
func (t *IdleTracker) CleanupStale(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.nowFn().Add(-maxAge).Unix()
	removed := 0
	for podID, entry := range t.counters {
		if entry.LastCheckEpoch < cutoff {
			delete(t.counters, podID)
			removed++
		}
	}
	if removed > 0 {
		t.dirty = true
		logger.Infof("Removed %d stale idle counters", removed)
	}
	return removed
}

// SaveIfDirty persists the counters when anything changed since the
// last save. The poll loop calls this once per cycle.
func (t *IdleTracker) SaveIfDirty() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	if err := t.saveLocked(); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

func (t *IdleTracker) saveLocked() error {
	data, err := json.MarshalIndent(t.counters, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling counters: %w", err)
	}

	tmp := t.countersPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing counters: %w", err)
	}
	if err := os.Rename(tmp, t.countersPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing counters: %w", err)
	}
	return nil
}

// load reads the persisted counters; a missing or unreadable file means
// starting empty, since the log can rebuild everything anyway.
func (t *IdleTracker) load() error {
	data, err := os.ReadFile(t.countersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading counters: %w", err)
	}

	counters := make(map[string]*models.IdleCounterEntry)
	if err := json.Unmarshal(data, &counters); err != nil {
		logger.Warnf("Discarding unreadable counter file %s: %v", t.countersPath, err)
		return nil
	}

	// Enforce the counter/epoch invariant on whatever was on disk.
	for podID, entry := range counters {
		if (entry.ConsecutiveBelowThreshold > 0) != (entry.FirstBelowEpoch != nil) {
			logger.WithPod(podID).Warn("Dropping counter entry with inconsistent streak state")
			delete(counters, podID)
		}
	}
	t.counters = counters
	return nil
}
