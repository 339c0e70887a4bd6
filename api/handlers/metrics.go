package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/pkg/storage"
)

// MetricsHandler serves recorded history: raw samples, rollups, and
// exports.
type MetricsHandler struct {
	store *storage.Store
}

func NewMetricsHandler(store *storage.Store) *MetricsHandler {
	return &MetricsHandler{store: store}
}

func parseEpochRange(c *gin.Context) (start, end int64) {
	start, _ = strconv.ParseInt(c.Query("start"), 10, 64)
	end, _ = strconv.ParseInt(c.Query("end"), 10, 64)
	return start, end
}

// GetMetrics returns a pod's raw samples within an optional epoch range.
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	podID := c.Param("id")
	start, end := parseEpochRange(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	records, err := h.store.ReadPod(podID, storage.ReadOptions{
		StartEpoch: start,
		EndEpoch:   end,
		Limit:      limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pod_id": podID, "metrics": records, "count": len(records)})
}

// GetLatest returns a pod's most recent sample.
func (h *MetricsHandler) GetLatest(c *gin.Context) {
	podID := c.Param("id")
	rec, err := h.store.LatestRecord(podID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no metrics recorded for pod"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetRollups returns compacted windows at a resolution of 30 or 60
// minutes.
func (h *MetricsHandler) GetRollups(c *gin.Context) {
	podID := c.Param("id")
	interval, err := strconv.Atoi(c.DefaultQuery("interval", "60"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval"})
		return
	}
	start, end := parseEpochRange(c)

	windows, err := h.store.ReadRollups(podID, interval, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedInterval) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pod_id":           podID,
		"interval_minutes": interval,
		"windows":          windows,
		"count":            len(windows),
	})
}

// Export streams history as a CSV or JSON download. Without a pod_id
// query the whole shared log is exported.
func (h *MetricsHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", storage.FormatCSV)
	podID := c.Query("pod_id")
	start, end := parseEpochRange(c)

	data, err := h.store.Export(podID, format, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedFormat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("pod_metrics_%s.%s", time.Now().Format("20060102_150405"), format)
	contentType := "application/json"
	if format == storage.FormatCSV {
		contentType = "text/csv"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
