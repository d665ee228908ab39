package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/tart/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/tart/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/tart/internal/types"
)

type handlers struct {
	sessions SessionSource
	metrics  *monitoring.Metrics
	breaker  *resilience.Breaker
	started  time.Time
}

// root lists the available endpoints
func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   "tart",
		"endpoints": []string{"/health", "/sessions", "/sessions/:id", "/stats", "/metrics"},
	})
}

// health reports degraded while the host breaker is open
func (h *handlers) health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	body := gin.H{
		"uptime_seconds": time.Since(h.started).Seconds(),
	}

	if h.breaker != nil {
		state := h.breaker.State()
		counts := h.breaker.Counts()
		body["breaker"] = gin.H{
			"name":                 h.breaker.Name(),
			"state":                state.String(),
			"consecutive_failures": counts.ConsecutiveFailures,
		}
		if state == resilience.StateOpen {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	body["status"] = status
	c.JSON(code, body)
}

func (h *handlers) listSessions(c *gin.Context) {
	list := []types.Session{}
	if h.sessions != nil {
		list = h.sessions.Sessions()
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": list,
		"count":    len(list),
	})
}

func (h *handlers) getSession(c *gin.Context) {
	id := c.Param("id")
	if h.sessions != nil {
		if s, ok := h.sessions.Lookup(id); ok {
			c.JSON(http.StatusOK, s)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "id": id})
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
