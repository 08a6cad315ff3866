package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording JSON-RPC
// activity per module and method.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records one handled request. A zero code means success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks transaction execution on the node.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	execution    prometheus.Histogram
	slot         prometheus.Gauge
}

// Ledger returns the transaction execution registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sale",
				Subsystem: "ledger",
				Name:      "transactions_total",
				Help:      "Transactions processed segmented by outcome.",
			}, []string{"outcome"}),
			execution: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "sale",
				Subsystem: "ledger",
				Name:      "execution_seconds",
				Help:      "Time spent executing and committing a transaction.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			}),
			slot: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sale",
				Subsystem: "ledger",
				Name:      "slot",
				Help:      "Last committed slot.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.transactions, ledgerRegistry.execution, ledgerRegistry.slot)
	})
	return ledgerRegistry
}

// ObserveTransaction records the outcome of one submitted transaction.
// Outcomes are "committed", "failed" or "rejected".
func (m *LedgerMetrics) ObserveTransaction(outcome string, slot uint64, duration time.Duration) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
	m.execution.Observe(duration.Seconds())
	if outcome == "committed" {
		m.slot.Set(float64(slot))
	}
}
