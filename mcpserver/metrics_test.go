package mcpserver

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, WithMetrics(m))

	sid := h.open()
	h.call(sid, 1, "ping", nil)
	h.call(sid, 2, "tools/call", map[string]any{"name": "nope"})
	h.call(sid, 3, "x/custom", nil)
	h.call("", 4, "tools/list", nil)

	tests := []struct {
		method, outcome string
		want            float64
	}{
		{"initialize", "ok", 1},
		{"notifications/initialized", "notification", 1},
		{"ping", "ok", 1},
		{"tools/call", "tool_error", 1},
		{"other", "method_not_found", 1},
		{"tools/list", "invalid_request", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.requests.WithLabelValues(tt.method, tt.outcome))
		if got != tt.want {
			t.Errorf("requests{%s,%s} = %v, want %v", tt.method, tt.outcome, got, tt.want)
		}
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}

	h.d.CloseSession(sid)
	if got := testutil.ToFloat64(m.activeSessions); got != 0 {
		t.Errorf("active sessions after close = %v, want 0", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.observe("ping", "ok", 0)
	m.setActiveSessions(3)
}
