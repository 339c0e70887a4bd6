// Package middleware holds the gin middleware for the dashboard API:
// request logging, CORS, JWT auth, and trace-ID propagation.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDHeader carries the trace ID in and out of the API. Stop and
// resume handlers thread it into the event publisher so an audit event
// can be tied back to the request that caused it.
const TraceIDHeader = "X-Trace-ID"

const traceIDKey = "trace_id"

// TraceID accepts a caller-supplied trace ID when it is a well-formed
// UUID and mints one otherwise, so log and event correlation never
// rides on an arbitrary client string.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if _, err := uuid.Parse(traceID); err != nil {
			traceID = uuid.New().String()
		}

		c.Set(traceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Next()
	}
}

// GetTraceID returns the request's trace ID, or empty outside the
// middleware.
func GetTraceID(c *gin.Context) string {
	if traceID, exists := c.Get(traceIDKey); exists {
		return traceID.(string)
	}
	return ""
}
