// Package metrics exposes Prometheus collectors for the pairing service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pear",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pear",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	pairingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pear",
			Subsystem: "pairing",
			Name:      "outcomes_total",
			Help:      "Pairing attempts by outcome.",
		},
		[]string{"outcome", "error"},
	)
	pairingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pear",
			Subsystem: "pairing",
			Name:      "duration_seconds",
			Help:      "Time from request to resolution.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15, 20, 25, 30},
		},
		[]string{"outcome"},
	)
	pairingActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pear",
			Subsystem: "pairing",
			Name:      "active_sessions",
			Help:      "Pairing sessions not yet cleaned up.",
		},
	)
	cloudAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pear",
			Subsystem: "cloud",
			Name:      "auth_total",
			Help:      "Cloud authentication attempts by result.",
		},
		[]string{"result"},
	)
	keepAlivePings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pear",
			Subsystem: "keepalive",
			Name:      "pings_total",
			Help:      "Keep-alive pings by result.",
		},
		[]string{"success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			pairingOutcomes, pairingDuration, pairingActive,
			cloudAuth, keepAlivePings,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func PairingStarted() {
	RegisterMetrics()
	pairingActive.Inc()
}

func PairingCleaned() {
	RegisterMetrics()
	pairingActive.Dec()
}

func RecordPairingOutcome(outcome, errorKind string, duration time.Duration) {
	RegisterMetrics()
	pairingOutcomes.WithLabelValues(outcome, errorKind).Inc()
	pairingDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordCloudAuth(result string) {
	RegisterMetrics()
	cloudAuth.WithLabelValues(result).Inc()
}

func RecordKeepAlive(success bool) {
	RegisterMetrics()
	keepAlivePings.WithLabelValues(strconv.FormatBool(success)).Inc()
}
