package mcpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggoodman/mcp-context-go/mcp"
)

const metricsPrefix = "mcpctx_"

// Outcome label values besides the JSON-RPC error code names.
const (
	outcomeOK           = "ok"
	outcomeToolError    = "tool_error"
	outcomeNotification = "notification"
)

// Metrics are the dispatcher's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	activeSessions prometheus.Gauge
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
// It panics if they are already registered there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "requests_total",
				Help: "JSON-RPC messages handled, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "request_duration_seconds",
				Help:    "Time spent handling a JSON-RPC message",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"method"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricsPrefix + "active_sessions",
				Help: "Sessions currently held in the session table",
			},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.activeSessions)
	return m
}

func (m *Metrics) observe(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	method = methodLabel(method)
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) setActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// methodLabel bounds label cardinality: clients choose method names.
func methodLabel(method string) string {
	switch mcp.Method(method) {
	case mcp.InitializeMethod,
		mcp.InitializedNotificationMethod,
		mcp.PingMethod,
		mcp.ResourcesListMethod,
		mcp.ResourcesReadMethod,
		mcp.ResourcesTemplatesListMethod,
		mcp.ToolsListMethod,
		mcp.ToolsCallMethod:
		return method
	case "":
		return "none"
	default:
		return "other"
	}
}
