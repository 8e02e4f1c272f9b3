package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProxyMetrics are the counters and histograms exposed on the interception
// proxy's /metrics endpoint.
type ProxyMetrics struct {
	CallsTotal       *prometheus.CounterVec
	AuditWriteErrors prometheus.Counter
	ScanDuration     prometheus.Histogram
}

// NewProxyMetrics registers the proxy's metrics against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for the process-wide one.
func NewProxyMetrics(reg prometheus.Registerer) *ProxyMetrics {
	factory := promauto.With(reg)
	return &ProxyMetrics{
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcpsentry",
			Subsystem: "proxy",
			Name:      "tool_calls_total",
			Help:      "Tool calls observed by the interception proxy, by server, tool, and decision.",
		}, []string{"server", "tool", "decision"}),
		AuditWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mcpsentry",
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Audit log writes that failed.",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mcpsentry",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of one server scan.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveDecision records one proxied tool call. decision is "allowed",
// "blocked", or "rejected".
func (m *ProxyMetrics) ObserveDecision(server, tool, decision string) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(server, tool, decision).Inc()
}

// ObserveAuditWriteError records one audit write that failed or was
// dropped on a full queue.
func (m *ProxyMetrics) ObserveAuditWriteError() {
	if m == nil {
		return
	}
	m.AuditWriteErrors.Inc()
}

// ObserveScanDuration records the wall-clock duration of one server scan.
func (m *ProxyMetrics) ObserveScanDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ScanDuration.Observe(seconds)
}
