package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/justinwlin/Runpod-Idle-Pod-Monitor/internal/events"
)

// EventsHandler serves the persisted audit trail when the Postgres
// history sink is enabled.
type EventsHandler struct {
	history *events.EventHistory
}

func NewEventsHandler(history *events.EventHistory) *EventsHandler {
	return &EventsHandler{history: history}
}

func (h *EventsHandler) Recent(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event history disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	evts, err := h.history.Recent(c.Query("pod_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evts, "count": len(evts)})
}
