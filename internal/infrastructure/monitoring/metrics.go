package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by command, write and refresh metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics (diagnostics server)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Event metrics
	EventsReceived  *prometheus.CounterVec
	EventsDelivered *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	Subscriptions   prometheus.Gauge

	// Session metrics
	Sessions           prometheus.Gauge
	DirectoryRefreshes *prometheus.CounterVec

	// Terminal metrics
	OutputBytes prometheus.Counter
	Writes      *prometheus.CounterVec
	Swaps       prometheus.Counter

	// Bridge metrics
	BridgeFrames *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for the JSON stats endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON stats endpoint
type Snapshot struct {
	Commands       int64   `json:"commands"`
	CommandErrors  int64   `json:"command_errors"`
	Events         int64   `json:"events"`
	Sessions       int64   `json:"sessions"`
	Subscriptions  int64   `json:"subscriptions"`
	OutputBytes    int64   `json:"output_bytes"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	CommandSeconds float64 `json:"command_seconds"`
}

// NewMetrics creates a metrics collector registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_http_requests_total",
			Help: "Total number of diagnostics HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tart_http_request_duration_seconds",
			Help:    "Diagnostics HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Command metrics
	m.CommandsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_commands_total",
			Help: "Total number of host commands by outcome",
		},
		[]string{"command", "outcome"},
	)
	m.CommandDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tart_command_duration_seconds",
			Help:    "Host command round-trip duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"command"},
	)

	// Event metrics
	m.EventsReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_events_received_total",
			Help: "Total number of host events received by tag",
		},
		[]string{"tag"},
	)
	m.EventsDelivered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_events_delivered_total",
			Help: "Total number of event deliveries to subscribers by tag",
		},
		[]string{"tag"},
	)
	m.EventsDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "tart_events_dropped_total",
			Help: "Total number of event payloads dropped as undecodable",
		},
	)
	m.Subscriptions = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "tart_subscriptions",
			Help: "Number of active event subscriptions",
		},
	)

	// Session metrics
	m.Sessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "tart_sessions",
			Help: "Number of sessions in the directory",
		},
	)
	m.DirectoryRefreshes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_directory_refreshes_total",
			Help: "Total number of directory refreshes by outcome",
		},
		[]string{"outcome"},
	)

	// Terminal metrics
	m.OutputBytes = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "tart_output_bytes_total",
			Help: "Total number of output bytes written to emulators",
		},
	)
	m.Writes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_writes_total",
			Help: "Total number of write_data commands by outcome",
		},
		[]string{"outcome"},
	)
	m.Swaps = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "tart_identity_swaps_total",
			Help: "Total number of emulator re-creations on session identity change",
		},
	)

	// Bridge metrics
	m.BridgeFrames = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tart_bridge_frames_total",
			Help: "Total number of websocket bridge frames",
		},
		[]string{"direction", "kind"},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tart_uptime_seconds",
			Help: "Client uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCommand records one host command and its outcome
func (m *Metrics) RecordCommand(command, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Commands++
	m.snapshot.CommandSeconds += duration.Seconds()
	if outcome != OutcomeSuccess {
		m.snapshot.CommandErrors++
	}
	m.mu.Unlock()
}

// RecordEventReceived records an event decoded from the host channel
func (m *Metrics) RecordEventReceived(tag string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(tag).Inc()
	m.mu.Lock()
	m.snapshot.Events++
	m.mu.Unlock()
}

// RecordEventDelivered records one delivery to a subscriber
func (m *Metrics) RecordEventDelivered(tag string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(tag).Inc()
}

// IncEventsDropped increments the dropped event counter
func (m *Metrics) IncEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// SetSubscriptions sets the number of active subscriptions
func (m *Metrics) SetSubscriptions(count int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(count))
	m.mu.Lock()
	m.snapshot.Subscriptions = int64(count)
	m.mu.Unlock()
}

// SetSessions sets the number of sessions in the directory
func (m *Metrics) SetSessions(count int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(count))
	m.mu.Lock()
	m.snapshot.Sessions = int64(count)
	m.mu.Unlock()
}

// RecordRefresh records a directory refresh outcome
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.DirectoryRefreshes.WithLabelValues(outcome).Inc()
}

// AddOutputBytes adds n bytes of ingested output
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
	m.mu.Lock()
	m.snapshot.OutputBytes += int64(n)
	m.mu.Unlock()
}

// RecordWrite records a write_data outcome
func (m *Metrics) RecordWrite(outcome string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(outcome).Inc()
}

// IncSwaps increments the identity swap counter
func (m *Metrics) IncSwaps() {
	if m == nil {
		return
	}
	m.Swaps.Inc()
}

// RecordFrame records a bridge frame; direction is "in" or "out"
func (m *Metrics) RecordFrame(direction, kind string) {
	if m == nil {
		return
	}
	m.BridgeFrames.WithLabelValues(direction, kind).Inc()
}

// Snapshot returns the current values for the JSON stats endpoint
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
