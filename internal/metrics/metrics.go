// Package metrics provides Prometheus instrumentation for the clearing engine.
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
	// SwapsTotal counts executed swaps, partitioned by direction.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curie_swaps_total",
		Help: "Total number of swaps executed",
	}, []string{"market", "direction"})

	// SwapLatency tracks swap execution latency.
	SwapLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curie_swap_latency_seconds",
		Help:    "Swap execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"market"})

	// LiquidationsTotal counts executed liquidations.
	LiquidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curie_liquidations_total",
		Help: "Total number of liquidations executed",
	}, []string{"market"})

	// FundingUpdatesTotal counts funding settlements per market.
	FundingUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curie_funding_updates_total",
		Help: "Total number of funding updates",
	}, []string{"market"})

	// MarginRejections counts actions rejected by the margin check.
	MarginRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curie_margin_rejections_total",
		Help: "Actions rejected by the initial margin check",
	})

	// ActiveMarkets tracks the number of registered markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "curie_active_markets",
		Help: "Number of currently registered markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "curie_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curie_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curie_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// MarketVolume tracks cumulative notional volume per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curie_market_volume_total",
		Help: "Cumulative swap volume in settlement tokens",
	}, []string{"market", "direction"})
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
