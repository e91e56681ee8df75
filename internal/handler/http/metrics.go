package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the ambient health/metrics HTTP surface. The
// surface itself only exposes a handful of static routes (/health, /ready,
// /live, /health/ai, /metrics), so request-path cardinality isn't a concern
// here the way it is on a public REST API.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// Content-cache metrics.
	cacheEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "content_cache_entries_total",
			Help: "Total number of entries currently in the content cache",
		},
	)

	itemsFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "items_fetched_total",
			Help: "Total number of items fetched, by source",
		},
		[]string{"source"},
	)

	fetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time taken to fetch and extract a single item",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"fetcher_kind"},
	)

	analysisRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Total number of analysis pipeline runs, by outcome",
		},
		[]string{"status"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Time taken to run the full daily analysis pass",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)

// responseWriter wraps http.ResponseWriter to record status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// MetricsMiddleware records request count, duration, and in-flight gauge
// for every request against the health/metrics surface.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		start := time.Now()
		next.ServeHTTP(rw, r)
		duration := time.Since(start).Seconds()

		status := strconv.Itoa(rw.statusCode)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
	})
}

// MetricsHandler returns an HTTP handler for the Prometheus metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordItemsFetched records the number of items fetched from a source.
func RecordItemsFetched(source string, count int) {
	itemsFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordFetchDuration records the time taken to fetch and extract one item.
func RecordFetchDuration(fetcherKind string, duration time.Duration) {
	fetchDuration.WithLabelValues(fetcherKind).Observe(duration.Seconds())
}

// RecordAnalysisRun records the outcome of one analysis pipeline run.
func RecordAnalysisRun(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	analysisRunsTotal.WithLabelValues(status).Inc()
}

// RecordAnalysisDuration records the time taken to run the full analysis pass.
func RecordAnalysisDuration(duration time.Duration) {
	analysisDuration.Observe(duration.Seconds())
}

// UpdateCacheEntriesTotal updates the gauge of total content-cache entries.
func UpdateCacheEntriesTotal(count int) {
	cacheEntriesTotal.Set(float64(count))
}
