package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	quotaEvaluationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookkeeper_quota_evaluations_total",
		Help: "Total number of quota limit evaluations.",
	})

	quotaLimitExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookkeeper_quota_limit_exceeded_total",
			Help: "Evaluations that found consumption above a limit.",
		},
		[]string{"limit"},
	)

	usageRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookkeeper_usage_records_total",
		Help: "Total number of usage records written.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		quotaEvaluationsTotal, quotaLimitExceededTotal, usageRecordsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvaluation records one limit evaluation and which limits were exceeded.
func ObserveEvaluation(softExceeded, hardExceeded bool) {
	quotaEvaluationsTotal.Inc()
	if softExceeded {
		quotaLimitExceededTotal.WithLabelValues("soft").Inc()
	}
	if hardExceeded {
		quotaLimitExceededTotal.WithLabelValues("hard").Inc()
	}
}

// ObserveUsageRecord counts one written usage record.
func ObserveUsageRecord() {
	usageRecordsTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
