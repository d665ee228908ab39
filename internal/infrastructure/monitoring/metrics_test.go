package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	require.NotNil(t, m.Gauge)
	return m.Gauge.GetValue()
}

func TestRecordCommand(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordCommand("GetTerminals", OutcomeSuccess, 10*time.Millisecond)
	metrics.RecordCommand("GetTerminals", OutcomeFailure, 5*time.Millisecond)
	metrics.RecordCommand("WriteData", OutcomeSuccess, time.Millisecond)

	assert.Equal(t, 1.0, value(t, metrics.CommandsTotal.WithLabelValues("GetTerminals", OutcomeSuccess)))
	assert.Equal(t, 1.0, value(t, metrics.CommandsTotal.WithLabelValues("GetTerminals", OutcomeFailure)))
	assert.Equal(t, 1.0, value(t, metrics.CommandsTotal.WithLabelValues("WriteData", OutcomeSuccess)))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(3), snap.Commands)
	assert.Equal(t, int64(1), snap.CommandErrors)
}

func TestGaugesAndSnapshot(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.SetSessions(2)
	metrics.SetSubscriptions(4)
	metrics.AddOutputBytes(5)
	metrics.AddOutputBytes(7)
	metrics.RecordEventReceived("TerminalRead")

	assert.Equal(t, 2.0, value(t, metrics.Sessions))
	assert.Equal(t, 4.0, value(t, metrics.Subscriptions))
	assert.Equal(t, 12.0, value(t, metrics.OutputBytes))

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Sessions)
	assert.Equal(t, int64(4), snap.Subscriptions)
	assert.Equal(t, int64(12), snap.OutputBytes)
	assert.Equal(t, int64(1), snap.Events)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics

	assert.NotPanics(t, func() {
		metrics.RecordCommand("GetTerminals", OutcomeSuccess, time.Millisecond)
		metrics.RecordEventReceived("TerminalCreated")
		metrics.RecordEventDelivered("TerminalCreated")
		metrics.IncEventsDropped()
		metrics.SetSessions(1)
		metrics.SetSubscriptions(1)
		metrics.RecordRefresh(OutcomeSuccess)
		metrics.AddOutputBytes(1)
		metrics.RecordWrite(OutcomeSuccess)
		metrics.IncSwaps()
		metrics.RecordFrame("in", "reply")
		metrics.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		NewTimer(metrics, "WriteData").Stop(OutcomeSuccess)
	})
	assert.Equal(t, Snapshot{}, metrics.Snapshot())
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(metrics))
	router.GET("/sessions/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, value(t, metrics.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "200")))
}
