package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Caller side
	CommandsSentTotal      *prometheus.CounterVec
	ResponsesReceivedTotal *prometheus.CounterVec
	CallTimeoutsTotal      *prometheus.CounterVec
	CallDuration           *prometheus.HistogramVec
	DiscoveryErrorsTotal   *prometheus.CounterVec

	// Registry
	SessionsLive      prometheus.Gauge
	SessionsReclaimed prometheus.Counter

	// Session side
	CommandsDispatchedTotal *prometheus.CounterVec
	DispatchDuration        *prometheus.HistogramVec
	MalformedRecordsTotal   *prometheus.CounterVec
	HeartbeatsTotal         prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		CommandsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_commands_sent_total",
				Help: "Total number of commands appended to session command logs",
			},
			[]string{"tool"},
		),
		ResponsesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_responses_received_total",
				Help: "Total number of matched responses by status",
			},
			[]string{"tool", "status"},
		),
		CallTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_call_timeouts_total",
				Help: "Total number of calls that timed out waiting for a response",
			},
			[]string{"tool"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_call_duration_seconds",
				Help:    "Round-trip duration of calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		DiscoveryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_discovery_errors_total",
				Help: "Total number of target resolution failures by reason",
			},
			[]string{"reason"},
		),

		SessionsLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_sessions_live",
				Help: "Number of live sessions seen on the last scan",
			},
		),
		SessionsReclaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_sessions_reclaimed_total",
				Help: "Total number of stale sessions reclaimed",
			},
		),

		CommandsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_commands_dispatched_total",
				Help: "Total number of commands dispatched to the executor by status",
			},
			[]string{"tool", "status"},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_dispatch_duration_seconds",
				Help:    "Duration of executor calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		MalformedRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_malformed_records_total",
				Help: "Total number of unparseable records skipped by channel",
			},
			[]string{"channel"},
		),
		HeartbeatsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_heartbeats_total",
				Help: "Total number of heartbeats published",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.CommandsSentTotal)
	m.registry.MustRegister(m.ResponsesReceivedTotal)
	m.registry.MustRegister(m.CallTimeoutsTotal)
	m.registry.MustRegister(m.CallDuration)
	m.registry.MustRegister(m.DiscoveryErrorsTotal)

	m.registry.MustRegister(m.SessionsLive)
	m.registry.MustRegister(m.SessionsReclaimed)

	m.registry.MustRegister(m.CommandsDispatchedTotal)
	m.registry.MustRegister(m.DispatchDuration)
	m.registry.MustRegister(m.MalformedRecordsTotal)
	m.registry.MustRegister(m.HeartbeatsTotal)
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordCommandSent counts one appended command.
func (m *Metrics) RecordCommandSent(tool string) {
	if m == nil {
		return
	}
	m.CommandsSentTotal.WithLabelValues(tool).Inc()
}

// RecordResponse records a matched response and the call latency.
func (m *Metrics) RecordResponse(tool string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ResponsesReceivedTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.CallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordTimeout counts a call that gave up waiting.
func (m *Metrics) RecordTimeout(tool string) {
	if m == nil {
		return
	}
	m.CallTimeoutsTotal.WithLabelValues(tool).Inc()
}

// RecordDiscoveryError counts a resolution failure.
func (m *Metrics) RecordDiscoveryError(reason string) {
	if m == nil {
		return
	}
	m.DiscoveryErrorsTotal.WithLabelValues(reason).Inc()
}

// SetLiveSessions sets the live session gauge.
func (m *Metrics) SetLiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsLive.Set(float64(n))
}

// RecordReclaimed counts a reclaimed stale session.
func (m *Metrics) RecordReclaimed() {
	if m == nil {
		return
	}
	m.SessionsReclaimed.Inc()
}

// RecordDispatch records one executor call.
func (m *Metrics) RecordDispatch(tool string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsDispatchedTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.DispatchDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordMalformed counts a skipped record on channel "command" or "response".
func (m *Metrics) RecordMalformed(channel string) {
	if m == nil {
		return
	}
	m.MalformedRecordsTotal.WithLabelValues(channel).Inc()
}

// RecordHeartbeat counts one published heartbeat.
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.HeartbeatsTotal.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
