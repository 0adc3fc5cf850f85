// Package metrics exposes Prometheus collectors for the discovery service.
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
	// ProbesTotal counts existence probes partitioned by site and the
	// observed status code (including the transport failure sentinel).
	ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipecrawl_probes_total",
		Help: "Total existence probes issued, labeled by site and status code.",
	}, []string{"site", "code"})

	// PermalinksTotal counts discovered permalinks per site.
	PermalinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipecrawl_permalinks_total",
		Help: "Total permalinks discovered, labeled by site.",
	}, []string{"site"})

	// ProbeDuration tracks probe latency per site.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recipecrawl_probe_duration_seconds",
		Help:    "Histogram of existence probe latencies, labeled by site.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"site"})

	// ActiveWorkers gauges the number of probe workers currently running.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recipecrawl_active_workers",
		Help: "Number of probe workers currently running.",
	})

	// RunsTotal counts crawl runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipecrawl_runs_total",
		Help: "Total crawl runs, labeled by terminal status.",
	}, []string{"status"})

	// SkippedTotal counts identifiers excluded by the skip filter.
	SkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipecrawl_skipped_total",
		Help: "Total identifiers skipped before probing, labeled by site.",
	}, []string{"site"})

	// HTTPRequestsTotal counts API requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recipecrawl_http_requests_total",
		Help: "Total API requests, labeled by method, route, and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks API request latency by method and route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recipecrawl_http_request_duration_seconds",
		Help:    "Histogram of API request latencies, labeled by method and route.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
)

// ObserveProbe records one probe completion.
func ObserveProbe(site string, code int, duration time.Duration) {
	ProbesTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	ProbeDuration.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one completed API request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRun records a run reaching a terminal status.
func ObserveRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
