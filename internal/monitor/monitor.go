// Package monitor wires every component into the poll loop: fetch pod
// snapshots, push them through the write pipeline, evaluate auto-stop
// candidates, and act on them. Background maintenance (retention,
// compaction, stale cleanup) runs on cron schedules alongside.
package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/costcache"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/events"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/metrics"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/pipeline"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/poller"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/config"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

type Monitor struct {
	cfg       *config.Config
	store     *storage.Store
	tracker   *tracker.IdleTracker
	writer    *pipeline.MetricWriter
	poller    poller.Poller
	publisher *events.Publisher
	costs     *costcache.Cache
	metrics   *metrics.Metrics

	cron  *cron.Cron
	nowFn func() time.Time
}

// Deps carries the constructed components; nil costs and metrics are
// tolerated so tests can wire only what they exercise.
type Deps struct {
	Store     *storage.Store
	Tracker   *tracker.IdleTracker
	Writer    *pipeline.MetricWriter
	Poller    poller.Poller
	Publisher *events.Publisher
	Costs     *costcache.Cache
	Metrics   *metrics.Metrics
}

func New(cfg *config.Config, deps Deps) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     deps.Store,
		tracker:   deps.Tracker,
		writer:    deps.Writer,
		poller:    deps.Poller,
		publisher: deps.Publisher,
		costs:     deps.Costs,
		metrics:   deps.Metrics,
		cron:      cron.New(),
		nowFn:     time.Now,
	}
}

// Run blocks until the context is cancelled. Counters are rebuilt from
// the log before the first poll so a restart resumes idle streaks
// instead of resetting them.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.tracker.InitializeAllFromLog(); err != nil {
		logger.WithError(err).Warn("Failed to rebuild idle counters from log, starting empty")
	}
	if err := m.writer.Start(); err != nil {
		return err
	}
	if err := m.scheduleJobs(); err != nil {
		return err
	}
	m.cron.Start()
	defer m.cron.Stop()

	frequency := m.cfg.AutoStop.Sampling.Frequency
	if frequency <= 0 {
		frequency = time.Minute
	}
	logger.Infof("Monitor started, polling every %s", frequency)

	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	m.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			if err := m.tracker.SaveIfDirty(); err != nil {
				logger.WithError(err).Error("Failed to save counters on shutdown")
			}
			logger.Info("Monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

// pollOnce runs one full cycle. A fetch failure skips the cycle; the
// log stays untouched and counters are re-evaluated next tick.
func (m *Monitor) pollOnce(ctx context.Context) {
	now := m.nowFn()

	pods, err := m.poller.FetchPods(ctx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.PollErrors.Inc()
		}
		logger.WithError(err).Error("Failed to fetch pods, skipping poll cycle")
		return
	}

	if m.costs != nil {
		m.costs.SyncFromPods(pods)
	}

	live := make(map[string]bool, len(pods)*2)
	for _, pod := range pods {
		live[pod.ID] = true
		live[pod.Name] = true
	}
	m.tracker.PruneExclusions(live)

	for _, pod := range pods {
		rec := pod.ToMetricRecord(now)
		if err := m.writer.Write(rec); err != nil {
			if m.metrics != nil {
				m.metrics.SamplesRejected.Inc()
			}
			logger.WithPod(pod.ID).WithError(err).Warn("Sample not recorded")
		}
	}

	m.evaluateAutoStop(ctx)

	if err := m.tracker.SaveIfDirty(); err != nil {
		logger.WithError(err).Error("Failed to persist idle counters")
	}

	if m.metrics != nil {
		m.metrics.PollCycles.Inc()
		m.metrics.TrackedPods.Set(float64(len(m.tracker.Counters())))
		m.metrics.SkippedLines.Set(float64(m.store.SkippedLines()))
	}
}

func (m *Monitor) evaluateAutoStop(ctx context.Context) {
	if !m.cfg.AutoStop.Enabled {
		return
	}

	candidates := m.tracker.AllAutoStopCandidates()
	if m.metrics != nil {
		m.metrics.IdlePods.Set(float64(len(candidates)))
	}

	for _, cand := range candidates {
		m.publisher.PodIdle(cand.PodID, cand.Entry)

		if m.cfg.AutoStop.MonitorOnly {
			logger.WithPod(cand.PodID).Infof("Pod %s idle for %s, monitor-only mode so not stopping",
				cand.Entry.PodName, cand.IdleFor)
			continue
		}

		if err := m.poller.StopPod(ctx, cand.PodID); err != nil {
			if m.metrics != nil {
				m.metrics.StopsFailed.Inc()
			}
			m.publisher.StopFailed(cand.PodID, cand.Entry.PodName, err)
			continue
		}

		if m.metrics != nil {
			m.metrics.StopsExecuted.Inc()
		}
		costPerHr := 0.0
		if m.costs != nil {
			if entry, ok, _ := m.costs.Get(cand.PodID); ok {
				costPerHr = entry.CostPerHr
			}
		}
		m.publisher.StopExecuted(cand.PodID, cand.Entry.PodName, costPerHr)
		m.tracker.ResetCounter(cand.PodID)
	}
}
