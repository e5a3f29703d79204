// Package metrics exposes xlimdb's runtime counters as real Prometheus
// collectors, scraped over HTTP via promhttp.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlimdb_operations_total",
			Help: "Total number of protocol commands processed, by command and status.",
		},
		[]string{"command", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xlimdb_operation_duration_seconds",
			Help:    "Time taken to process a protocol command, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xlimdb_connections_active",
			Help: "Number of currently open client connections.",
		},
	)

	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xlimdb_transactions_active",
			Help: "Number of currently open transactions.",
		},
	)

	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "xlimdb_collections_total",
			Help: "Number of collections in the database.",
		},
	)

	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xlimdb_documents_total",
			Help: "Number of documents per collection.",
		},
		[]string{"collection"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		ConnectionsActive,
		TransactionsActive,
		CollectionsTotal,
		DocumentsTotal,
	)
}

// RecordOperation records one protocol command's outcome and latency.
func RecordOperation(command, status string, duration time.Duration) {
	OperationsTotal.WithLabelValues(command, status).Inc()
	OperationDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// Handler returns the HTTP handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
