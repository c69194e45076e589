// Package metrics exposes the Prometheus HTTP collectors and the scrape handler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsInFlight       prometheus.Gauge
	uploadBytesTotal           *prometheus.CounterVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route, and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		)

		httpRequestsInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		)

		uploadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_upload_bytes_total",
				Help: "Bytes accepted through multipart uploads, labeled by kind.",
			},
			[]string{"kind"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpload adds n accepted upload bytes for kind (csv or account).
func ObserveUpload(kind string, n int) {
	if n <= 0 {
		return
	}
	uploadBytesTotal.WithLabelValues(kind).Add(float64(n))
}
