package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pool metrics
	WorkersAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simplegym_workers_alive",
			Help: "Number of worker subprocesses currently alive",
		},
	)

	EnvironmentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplegym_environments_created_total",
			Help: "Total number of environment ids allocated",
		},
	)

	EnvironmentsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "simplegym_environments_active",
			Help: "Number of environments created and not yet closed",
		},
	)

	// IPC metrics
	IPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplegym_ipc_requests_total",
			Help: "Total number of IPC requests by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	IPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simplegym_ipc_request_duration_seconds",
			Help:    "IPC round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	IPCTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplegym_ipc_timeouts_total",
			Help: "Total number of IPC requests that exceeded the timeout",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplegym_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simplegym_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkersAlive,
		EnvironmentsCreated,
		EnvironmentsActive,
		IPCRequestsTotal,
		IPCRequestDuration,
		IPCTimeouts,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
