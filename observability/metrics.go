package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type rpcMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// RPCMetrics returns the lazily-initialised metrics registry used to record
// JSON-RPC activity and emitted ledger events.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staychain",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staychain",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "staychain",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "staychain",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Total ledger events emitted segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.events,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an RPC request.
func (m *rpcMetrics) Observe(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveError records an RPC error by method and JSON-RPC error code.
func (m *rpcMetrics) ObserveError(method, code string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.errors.WithLabelValues(method, code).Inc()
}

// ObserveEvent counts a ledger event by type.
func (m *rpcMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}
