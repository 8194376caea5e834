package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics.
// Uses a custom registry, no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Store executable invocations.
	StoreCommandsTotal   *prometheus.CounterVec
	StoreCommandDuration *prometheus.HistogramVec

	// MCP tool calls.
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Access log writes.
	AccessLogAppendsTotal *prometheus.CounterVec

	// Admin HTTP API.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		StoreCommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "store",
			Name:      "commands_total",
			Help:      "Total api-vault executable invocations.",
		}, []string{"command", "status"}),

		StoreCommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "store",
			Name:      "command_duration_seconds",
			Help:      "api-vault executable invocation duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"command"}),

		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total MCP tool calls.",
		}, []string{"tool", "status"}),

		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "MCP tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		AccessLogAppendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "access_log",
			Name:      "appends_total",
			Help:      "Total access log appends.",
		}, []string{"status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "api_vault_mcp",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "api_vault_mcp",
			Name:      "active_requests",
			Help:      "Number of in-flight tool calls and admin requests.",
		}),
	}

	reg.MustRegister(
		m.StoreCommandsTotal,
		m.StoreCommandDuration,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.AccessLogAppendsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RecordToolCall counts one finished tool call. Nil-safe.
func (m *MetricsCollector) RecordToolCall(tool string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, statusLabel(err)).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(seconds)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
