package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/config"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/models"
)

// ConfigHandler exposes the tunable parts of the running config.
// Changes apply immediately but are not written back to the config
// file; a restart reverts to the file.
type ConfigHandler struct {
	mu      sync.Mutex
	cfg     *config.Config
	tracker *tracker.IdleTracker
}

func NewConfigHandler(cfg *config.Config, t *tracker.IdleTracker) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, tracker: t}
}

func (h *ConfigHandler) Get(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"auto_stop": gin.H{
			"enabled":         h.cfg.AutoStop.Enabled,
			"monitor_only":    h.cfg.AutoStop.MonitorOnly,
			"thresholds":      h.cfg.AutoStop.Thresholds,
			"min_data_points": h.cfg.AutoStop.MinDataPoints,
			"exclude_pods":    h.cfg.AutoStop.ExcludePods,
			"include_pods":    h.cfg.AutoStop.IncludePods,
		},
		"retention": h.cfg.Storage.Retention,
	})
}

func (h *ConfigHandler) UpdateThresholds(c *gin.Context) {
	var req models.Thresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.MaxCPUPercent < 0 || req.MaxGPUPercent < 0 || req.MaxMemoryPercent < 0 || req.DurationSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "thresholds must be non-negative and duration positive"})
		return
	}

	h.mu.Lock()
	h.cfg.AutoStop.Thresholds = req
	h.mu.Unlock()
	h.tracker.SetThresholds(req)

	c.JSON(http.StatusOK, gin.H{"thresholds": req})
}

func (h *ConfigHandler) UpdateRetention(c *gin.Context) {
	var req models.RetentionPolicy
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	h.cfg.Storage.Retention = req
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"retention": req})
}

type exclusionsRequest struct {
	ExcludePods []string `json:"exclude_pods"`
	IncludePods []string `json:"include_pods"`
}

func (h *ConfigHandler) UpdateExclusions(c *gin.Context) {
	var req exclusionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h.mu.Lock()
	h.cfg.AutoStop.ExcludePods = req.ExcludePods
	h.cfg.AutoStop.IncludePods = req.IncludePods
	h.mu.Unlock()
	h.tracker.SetExclusions(req.ExcludePods, req.IncludePods)

	c.JSON(http.StatusOK, gin.H{
		"exclude_pods": req.ExcludePods,
		"include_pods": req.IncludePods,
	})
}
