package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/events"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/pipeline"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/config"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

type stubPoller struct {
	pods     []models.PodSnapshot
	fetchErr error
	stopErr  error
	stopped  []string
}

func (s *stubPoller) FetchPods(ctx context.Context) ([]models.PodSnapshot, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.pods, nil
}

func (s *stubPoller) StopPod(ctx context.Context, podID string) error {
	s.stopped = append(s.stopped, podID)
	return s.stopErr
}

func (s *stubPoller) ResumePod(ctx context.Context, podID string) error {
	return nil
}

func idlePod(id string) models.PodSnapshot {
	return models.PodSnapshot{ID: id, Name: id + "-name", Status: models.StatusRunning, CPUPercent: 0.3}
}

func busyPod(id string) models.PodSnapshot {
	return models.PodSnapshot{ID: id, Name: id + "-name", Status: models.StatusRunning, CPUPercent: 95}
}

// autoStopConfig qualifies a pod after a single idle sample so one
// pollOnce is enough to trigger the stop path.
func autoStopConfig() *config.Config {
	cfg := &config.Config{}
	cfg.AutoStop.Enabled = true
	cfg.AutoStop.MinDataPoints = 1
	cfg.AutoStop.Thresholds = models.Thresholds{
		MaxCPUPercent:    1.0,
		MaxGPUPercent:    1.0,
		MaxMemoryPercent: 1.0,
		DurationSeconds:  0,
	}
	return cfg
}

func newTestMonitor(t *testing.T, cfg *config.Config, p *stubPoller) (*Monitor, *events.EventBus) {
	t.Helper()
	store, err := storage.Open(t.TempDir(), "pod_metrics.jsonl")
	require.NoError(t, err)

	tr, err := tracker.New(store, cfg.AutoStop.Thresholds, cfg.AutoStop.MinDataPoints)
	require.NoError(t, err)

	writer := pipeline.NewMetricWriter(store,
		pipeline.WithPostWriteHooks(
			pipeline.ShardHook{Store: store},
			pipeline.CounterHook{Tracker: tr},
		),
	)

	bus := events.NewEventBus(16)
	m := New(cfg, Deps{
		Store:     store,
		Tracker:   tr,
		Writer:    writer,
		Poller:    p,
		Publisher: events.NewPublisher(bus),
	})
	return m, bus
}

func drain(ch <-chan *models.Event) []*models.Event {
	var out []*models.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPollOnce_StopsQualifyingPod(t *testing.T) {
	p := &stubPoller{pods: []models.PodSnapshot{idlePod("pod-a"), busyPod("pod-b")}}
	m, bus := newTestMonitor(t, autoStopConfig(), p)
	executed := bus.Subscribe(models.EventTypeStopExecuted)

	m.pollOnce(context.Background())

	assert.Equal(t, []string{"pod-a"}, p.stopped)

	evs := drain(executed)
	require.Len(t, evs, 1)
	assert.Equal(t, "pod-a", evs[0].PodID)

	// Stopping resets the streak so a resumed pod starts from zero.
	_, tracked := m.tracker.Entry("pod-a")
	assert.False(t, tracked)
	entry, tracked := m.tracker.Entry("pod-b")
	require.True(t, tracked)
	assert.Equal(t, 0, entry.ConsecutiveBelowThreshold)

	recs, err := m.store.Read(storage.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestPollOnce_MonitorOnlyReportsWithoutStopping(t *testing.T) {
	cfg := autoStopConfig()
	cfg.AutoStop.MonitorOnly = true
	p := &stubPoller{pods: []models.PodSnapshot{idlePod("pod-a")}}
	m, bus := newTestMonitor(t, cfg, p)
	idle := bus.Subscribe(models.EventTypePodIdle)

	m.pollOnce(context.Background())

	assert.Empty(t, p.stopped)
	evs := drain(idle)
	require.Len(t, evs, 1)
	assert.Equal(t, "pod-a", evs[0].PodID)

	// The streak survives so the dashboard keeps showing the idle pod.
	entry, tracked := m.tracker.Entry("pod-a")
	require.True(t, tracked)
	assert.Equal(t, 1, entry.ConsecutiveBelowThreshold)
}

func TestPollOnce_DisabledAutoStopOnlyRecords(t *testing.T) {
	cfg := autoStopConfig()
	cfg.AutoStop.Enabled = false
	p := &stubPoller{pods: []models.PodSnapshot{idlePod("pod-a")}}
	m, bus := newTestMonitor(t, cfg, p)
	idle := bus.Subscribe(models.EventTypePodIdle)

	m.pollOnce(context.Background())

	assert.Empty(t, p.stopped)
	assert.Empty(t, drain(idle))

	recs, err := m.store.Read(storage.ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPollOnce_StopFailureKeepsCounter(t *testing.T) {
	p := &stubPoller{
		pods:    []models.PodSnapshot{idlePod("pod-a")},
		stopErr: errors.New("api unavailable"),
	}
	m, bus := newTestMonitor(t, autoStopConfig(), p)
	failed := bus.Subscribe(models.EventTypeStopFailed)
	executed := bus.Subscribe(models.EventTypeStopExecuted)

	m.pollOnce(context.Background())

	assert.Equal(t, []string{"pod-a"}, p.stopped)
	evs := drain(failed)
	require.Len(t, evs, 1)
	assert.Equal(t, "pod-a", evs[0].PodID)
	assert.Empty(t, drain(executed))

	// The counter stays put so the next cycle retries the stop.
	entry, tracked := m.tracker.Entry("pod-a")
	require.True(t, tracked)
	assert.Equal(t, 1, entry.ConsecutiveBelowThreshold)
}

func TestPollOnce_FetchFailureSkipsCycle(t *testing.T) {
	p := &stubPoller{fetchErr: errors.New("gateway timeout")}
	m, _ := newTestMonitor(t, autoStopConfig(), p)

	m.pollOnce(context.Background())

	assert.Empty(t, p.stopped)
	recs, err := m.store.Read(storage.ReadOptions{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
