package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/api"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/costcache"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/events"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/logger"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/metrics"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/monitor"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/pipeline"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/poller"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/config"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Mode)

	store, err := storage.Open(cfg.Storage.DataDir, cfg.Storage.MetricsFile)
	if err != nil {
		return fmt.Errorf("failed to open metric store: %w", err)
	}
	store.SetRollupCapDays(cfg.Storage.RollupCapDays)

	idleTracker, err := tracker.New(store, cfg.AutoStop.Thresholds, cfg.AutoStop.MinDataPoints)
	if err != nil {
		return fmt.Errorf("failed to create idle tracker: %w", err)
	}
	idleTracker.SetExclusions(cfg.AutoStop.ExcludePods, cfg.AutoStop.IncludePods)

	bus := events.NewEventBus(cfg.Events.BufferSize)
	defer bus.Close()
	publisher := events.NewPublisher(bus)

	var history *events.EventHistory
	if cfg.Events.History.Enabled {
		history, err = events.NewEventHistory(cfg.Events.History.DSN(), bus.SubscribeAll())
		if err != nil {
			return fmt.Errorf("failed to open event history: %w", err)
		}
		history.Start()
		defer history.Stop()
	}

	var costs *costcache.Cache
	if cfg.Storage.CostCacheFile != "" {
		costs, err = costcache.Open(filepath.Join(cfg.Storage.DataDir, cfg.Storage.CostCacheFile))
		if err != nil {
			return fmt.Errorf("failed to open cost cache: %w", err)
		}
		defer costs.Close()
	}

	var m *metrics.Metrics
	if cfg.Prometheus.Enabled {
		m = metrics.New()
		go serveMetrics(m, cfg.Prometheus.Port)
	}

	apiClient := poller.NewClient(cfg.API.Key, cfg.API.GraphQLURL, cfg.API.RestURL, cfg.API.Timeout)
	resilientPoller := poller.NewResilientPoller(apiClient,
		cfg.API.CircuitBreaker.MaxFailures, cfg.API.CircuitBreaker.Timeout, cfg.API.RetryAttempts)

	writer := buildWriter(cfg, store, idleTracker, publisher, m)

	mon := monitor.New(cfg, monitor.Deps{
		Store:     store,
		Tracker:   idleTracker,
		Writer:    writer,
		Poller:    resilientPoller,
		Publisher: publisher,
		Costs:     costs,
		Metrics:   m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)
	go func() {
		if err := mon.Run(ctx); err != nil && err != context.Canceled {
			errChan <- fmt.Errorf("monitor: %w", err)
		}
	}()

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(cfg, api.Deps{
			Store:   store,
			Tracker: idleTracker,
			Poller:  resilientPoller,
			Monitor: mon,
			Bus:     bus,
			History: history,
			Costs:   costs,
		})
		go func() {
			logger.Infof("API server listening on port %d", cfg.Server.Port)
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- fmt.Errorf("server: %w", err)
			}
		}()
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("Monitor stopped gracefully")
	return nil
}

// buildWriter assembles the write pipeline. Hook order matters:
// validation and rounding gate the append, then derived state updates
// fan out in dependency order.
func buildWriter(cfg *config.Config, store *storage.Store, idleTracker *tracker.IdleTracker,
	publisher *events.Publisher, m *metrics.Metrics) *pipeline.MetricWriter {

	post := []pipeline.PostWriteHook{
		pipeline.ShardHook{Store: store},
		pipeline.CounterHook{Tracker: idleTracker},
		pipeline.CompactionHook{Store: store, Threshold: cfg.Storage.CompactThreshold},
		pipeline.SampleEventHook{Bus: publisher},
		pipeline.AlertHook{Bus: publisher, Level: 95.0},
	}
	if m != nil {
		post = append(post, metrics.WriteHook{M: m})
	}

	return pipeline.NewMetricWriter(store,
		pipeline.WithPreWriteHooks(
			pipeline.ValidationHook{},
			pipeline.RoundingHook{},
		),
		pipeline.WithPostWriteHooks(post...),
	)
}

func serveMetrics(m *metrics.Metrics, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Infof("Prometheus metrics on %s/metrics", addr)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("Metrics server failed")
	}
}
