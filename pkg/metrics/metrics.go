package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Staging metrics
	ArtifactsStagedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotgate_artifacts_staged_total",
			Help: "Total number of artifacts staged by role",
		},
		[]string{"role"},
	)

	StagedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depotgate_staged_bytes_total",
			Help: "Total payload bytes accepted into staging",
		},
	)

	// Shipping metrics
	ShipmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotgate_shipments_total",
			Help: "Total ship attempts by outcome",
		},
		[]string{"outcome"},
	)

	ShipmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "depotgate_shipment_duration_seconds",
			Help:    "End-to-end ship call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PurgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotgate_purges_total",
			Help: "Total purge calls by policy",
		},
		[]string{"policy"},
	)

	// Receipt metrics
	ReceiptsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotgate_receipts_appended_total",
			Help: "Total receipts appended by kind",
		},
		[]string{"kind"},
	)

	ReceiptWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "depotgate_receipt_write_failures_total",
			Help: "Receipt appends that failed after a committed state change",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depotgate_api_requests_total",
			Help: "Total number of API requests by verb and status",
		},
		[]string{"verb", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depotgate_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)
)

func init() {
	prometheus.MustRegister(
		ArtifactsStagedTotal,
		StagedBytesTotal,
		ShipmentsTotal,
		ShipmentDuration,
		PurgesTotal,
		ReceiptsAppendedTotal,
		ReceiptWriteFailures,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the HTTP handler serving the prometheus endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
