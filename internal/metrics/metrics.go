package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registry holds only this process's collectors so textfile dumps stay small.
var registry = prometheus.NewRegistry()

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlearchive_runs_total",
			Help: "Total number of fetch-and-append runs by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tlearchive_fetch_duration_seconds",
			Help:    "Duration of the element record fetch in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	archiveRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tlearchive_archive_records",
			Help: "Number of records in the archive after the last write.",
		},
	)

	lastEpochTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tlearchive_last_epoch_timestamp_seconds",
			Help: "Unix time of the newest archived element epoch.",
		},
	)

	lastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tlearchive_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tlearchive_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tlearchive_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	registry.MustRegister(
		runsTotal,
		fetchDurationSeconds,
		archiveRecords,
		lastEpochTimestamp,
		lastRunTimestamp,
		httpRequestsTotal,
		httpDurationSeconds,
	)
}

// IncRuns counts one run with the given outcome.
func IncRuns(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
	lastRunTimestamp.Set(float64(time.Now().Unix()))
}

// ObserveFetchDuration records how long a fetch took.
func ObserveFetchDuration(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// SetArchiveRecords sets the archive size gauge.
func SetArchiveRecords(n int) {
	archiveRecords.Set(float64(n))
}

// SetLastEpoch sets the newest archived epoch.
func SetLastEpoch(t time.Time) {
	lastEpochTimestamp.Set(float64(t.Unix()))
}

// WriteTextfile dumps all metrics in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// knownRoutes are the paths served in scheduled mode.
var knownRoutes = map[string]bool{
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/archive/latest": true,
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		path := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
