// Package metrics exposes the monitor's own operational counters over
// the standard Prometheus client.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

type Metrics struct {
	registry *prometheus.Registry

	PollCycles      prometheus.Counter
	PollErrors      prometheus.Counter
	SamplesWritten  prometheus.Counter
	SamplesRejected prometheus.Counter
	SkippedLines    prometheus.Gauge

	TrackedPods prometheus.Gauge
	IdlePods    prometheus.Gauge

	StopsExecuted prometheus.Counter
	StopsFailed   prometheus.Counter

	CompactionWindows prometheus.Counter
	RetentionRemoved  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PollCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_poll_cycles_total",
			Help: "Completed poll cycles against the RunPod API.",
		}),
		PollErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_poll_errors_total",
			Help: "Poll cycles that failed to fetch pods.",
		}),
		SamplesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_samples_written_total",
			Help: "Metric samples durably appended to the log.",
		}),
		SamplesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_samples_rejected_total",
			Help: "Samples rejected by pre-write validation.",
		}),
		SkippedLines: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runpod_monitor_skipped_log_lines",
			Help: "Corrupt log lines skipped since startup.",
		}),
		TrackedPods: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runpod_monitor_tracked_pods",
			Help: "Pods with an active idle counter entry.",
		}),
		IdlePods: factory.NewGauge(prometheus.GaugeOpts{
			Name: "runpod_monitor_idle_pods",
			Help: "Pods currently qualifying for auto-stop.",
		}),
		StopsExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_stops_executed_total",
			Help: "Automatic pod stops executed.",
		}),
		StopsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_stops_failed_total",
			Help: "Automatic pod stops that failed.",
		}),
		CompactionWindows: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_compaction_windows_total",
			Help: "Rollup windows created by compaction.",
		}),
		RetentionRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "runpod_monitor_retention_removed_total",
			Help: "Records removed by retention sweeps.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteHook counts durable samples; it plugs into the write pipeline
// as a post-write hook.
type WriteHook struct {
	M *Metrics
}

func (WriteHook) Name() string { return "prometheus" }

func (h WriteHook) AfterWrite(models.MetricRecord) error {
	h.M.SamplesWritten.Inc()
	return nil
}
