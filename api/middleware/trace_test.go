package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func traceRouter() (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(TraceID())
	r.GET("/ping", func(c *gin.Context) {
		seen = GetTraceID(c)
		c.Status(http.StatusNoContent)
	})
	return r, &seen
}

func TestTraceID_KeepsWellFormedClientID(t *testing.T) {
	r, seen := traceRouter()
	id := uuid.New().String()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, id, *seen)
	assert.Equal(t, id, w.Header().Get(TraceIDHeader))
}

func TestTraceID_ReplacesArbitraryClientString(t *testing.T) {
	r, seen := traceRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceIDHeader, "not-a-uuid'; DROP TABLE events;--")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	_, err := uuid.Parse(*seen)
	require.NoError(t, err)
	assert.Equal(t, *seen, w.Header().Get(TraceIDHeader))
}

func TestTraceID_MintsWhenHeaderMissing(t *testing.T) {
	r, seen := traceRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	_, err := uuid.Parse(*seen)
	require.NoError(t, err)
}
