package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics tracks settlement exports produced for reconciliation.
type ExportMetrics struct {
	rows     *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	exportsOnce     sync.Once
	exportsRegistry *ExportMetrics
)

// Exports returns the export metrics registry.
func Exports() *ExportMetrics {
	exportsOnce.Do(func() {
		exportsRegistry = &ExportMetrics{
			rows: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_export_rows_total",
				Help: "Purchase rows written by export format.",
			}, []string{"format"}),
			bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_export_bytes_total",
				Help: "Bytes written by export format.",
			}, []string{"format"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_export_failures_total",
				Help: "Failed exports by format.",
			}, []string{"format"}),
		}
		prometheus.MustRegister(exportsRegistry.rows, exportsRegistry.bytes, exportsRegistry.failures)
	})
	return exportsRegistry
}

// RecordExport counts one finished export.
func (m *ExportMetrics) RecordExport(format string, rows int, size int64) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(format).Add(float64(rows))
	if size > 0 {
		m.bytes.WithLabelValues(format).Add(float64(size))
	}
}

// RecordFailure counts a failed export.
func (m *ExportMetrics) RecordFailure(format string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(format).Inc()
}
