// Package metrics provides Prometheus instrumentation for the sale engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ContributionsTotal counts accepted contributions per pool.
	ContributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saleengine_contributions_total",
		Help: "Total number of accepted contributions",
	}, []string{"pool_id"})

	// PoolsCreated counts pools created since process start.
	PoolsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saleengine_pools_created_total",
		Help: "Total number of sale pools created",
	})

	// ActivePools tracks the number of pools still accepting contributions.
	ActivePools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saleengine_active_pools",
		Help: "Number of currently active sale pools",
	})

	// FinalizeOutcomes counts finalize decisions by outcome.
	FinalizeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saleengine_finalize_outcomes_total",
		Help: "Finalize decisions partitioned by outcome",
	}, []string{"outcome"})

	// RefundsTotal counts processed refunds.
	RefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saleengine_refunds_total",
		Help: "Total number of refunds paid out",
	})

	// ClaimsTotal counts processed vesting claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saleengine_claims_total",
		Help: "Total number of vesting claims paid out",
	})

	// RejectionsTotal counts rejected mutating operations by error kind.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saleengine_rejections_total",
		Help: "Rejected operations partitioned by error kind",
	}, []string{"op", "kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saleengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saleengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saleengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
