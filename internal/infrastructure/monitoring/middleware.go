package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures a command round-trip
type Timer struct {
	start   time.Time
	metrics *Metrics
	command string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, command string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		command: command,
	}
}

// Stop stops the timer and records the command outcome
func (t *Timer) Stop(outcome string) {
	t.metrics.RecordCommand(t.command, outcome, time.Since(t.start))
}
