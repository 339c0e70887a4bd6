package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/api/middleware"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/costcache"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/monitor"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/poller"
	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/tracker"
)

// PodHandler serves live pod state and lifecycle actions.
type PodHandler struct {
	poller  poller.Poller
	monitor *monitor.Monitor
	tracker *tracker.IdleTracker
	costs   *costcache.Cache
}

func NewPodHandler(p poller.Poller, m *monitor.Monitor, t *tracker.IdleTracker, costs *costcache.Cache) *PodHandler {
	return &PodHandler{poller: p, monitor: m, tracker: t, costs: costs}
}

// List returns live pod snapshots from the provider API.
func (h *PodHandler) List(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	pods, err := h.poller.FetchPods(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pods": pods, "count": len(pods)})
}

// Stop executes a manual stop of one pod.
func (h *PodHandler) Stop(c *gin.Context) {
	podID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.monitor.StopPod(ctx, podID, middleware.GetTraceID(c)); err != nil {
		if err == monitor.ErrPodExcluded {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping", "pod_id": podID})
}

// Resume restarts a stopped pod.
func (h *PodHandler) Resume(c *gin.Context) {
	podID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	if err := h.monitor.ResumePod(ctx, podID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resuming", "pod_id": podID})
}

// Counters returns every tracked idle counter entry.
func (h *PodHandler) Counters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"counters": h.tracker.Counters()})
}

// Candidates returns the pods currently qualifying for auto-stop.
func (h *PodHandler) Candidates(c *gin.Context) {
	candidates := h.tracker.AllAutoStopCandidates()

	type candidateView struct {
		PodID          string  `json:"pod_id"`
		PodName        string  `json:"pod_name"`
		IdleForSeconds float64 `json:"idle_for_seconds"`
		Streak         int     `json:"streak"`
	}
	out := make([]candidateView, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, candidateView{
			PodID:          cand.PodID,
			PodName:        cand.Entry.PodName,
			IdleForSeconds: cand.IdleFor.Seconds(),
			Streak:         cand.Entry.ConsecutiveBelowThreshold,
		})
	}
	c.JSON(http.StatusOK, gin.H{"candidates": out, "count": len(out)})
}

// Costs returns the historical cost cache.
func (h *PodHandler) Costs(c *gin.Context) {
	if h.costs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "cost cache disabled"})
		return
	}
	entries, err := h.costs.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.costs.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": entries, "stats": stats})
}
