package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

type HealthHandler struct {
	store     *storage.Store
	startedAt time.Time
}

func NewHealthHandler(store *storage.Store) *HealthHandler {
	return &HealthHandler{store: store, startedAt: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"skipped_lines":  h.store.SkippedLines(),
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	// Readiness means the data directory is usable.
	if _, err := h.store.Pods(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
