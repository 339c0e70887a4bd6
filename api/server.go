// Package api serves the dashboard HTTP interface: health probes,
// login, live pod state, recorded history, runtime config, and a
// websocket stream of monitor events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/api/handlers"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/api/middleware"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/api/websocket"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/auth"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/costcache"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/events"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/monitor"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/poller"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/config"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

// Deps are the components the API serves from. History and Costs may
// be nil when their features are disabled.
type Deps struct {
	Store   *storage.Store
	Tracker *tracker.IdleTracker
	Poller  poller.Poller
	Monitor *monitor.Monitor
	Bus     *events.EventBus
	History *events.EventHistory
	Costs   *costcache.Cache
}

type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         *config.Config
	deps        Deps
	authService *auth.Service
	wsHub       *websocket.Hub
	wsBridge    *websocket.EventBridge
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if cfg.App.Mode == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:      gin.New(),
		cfg:         cfg,
		deps:        deps,
		authService: auth.NewService(cfg.Server.JWTSecret, cfg.Server.JWTDuration),
		wsHub:       websocket.NewHub(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go s.wsHub.Run()
	s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Bus.SubscribeAll())
	s.wsBridge.Start()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.TraceID())
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Store)
	authHandler := handlers.NewAuthHandler(s.cfg.Server, s.authService)
	podHandler := handlers.NewPodHandler(s.deps.Poller, s.deps.Monitor, s.deps.Tracker, s.deps.Costs)
	metricsHandler := handlers.NewMetricsHandler(s.deps.Store)
	configHandler := handlers.NewConfigHandler(s.cfg, s.deps.Tracker)
	eventsHandler := handlers.NewEventsHandler(s.deps.History)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.POST("/auth/login", authHandler.Login)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.authService))
	{
		protected.GET("/pods", podHandler.List)
		protected.POST("/pods/:id/stop", podHandler.Stop)
		protected.POST("/pods/:id/resume", podHandler.Resume)
		protected.GET("/pods/counters", podHandler.Counters)
		protected.GET("/pods/candidates", podHandler.Candidates)
		protected.GET("/pods/costs", podHandler.Costs)

		protected.GET("/pods/:id/metrics", metricsHandler.GetMetrics)
		protected.GET("/pods/:id/metrics/latest", metricsHandler.GetLatest)
		protected.GET("/pods/:id/metrics/rollups", metricsHandler.GetRollups)
		protected.GET("/metrics/export", metricsHandler.Export)

		protected.GET("/config", configHandler.Get)
		protected.PUT("/config/thresholds", configHandler.UpdateThresholds)
		protected.PUT("/config/retention", configHandler.UpdateRetention)
		protected.PUT("/config/exclusions", configHandler.UpdateExclusions)

		protected.GET("/events/recent", eventsHandler.Recent)
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  idleTimeoutOrDefault(s.cfg.Server.IdleTimeout),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// idleTimeoutOrDefault guards against a zero idle timeout from config.
func idleTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}
