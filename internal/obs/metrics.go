// Package obs exposes the service's Prometheus metrics. It sits at the
// boundary: handlers and middleware increment counters, the core services
// stay metric-free.
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
		Name: "gatehouse_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"}, // success, invalid_credentials, disabled, throttled, error
	)

	throttleImpositions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatehouse_login_throttle_impositions_total",
		Help: "Logins rejected by the backoff throttle.",
	})

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_rate_limit_rejections_total",
			Help: "Requests rejected by the volumetric rate limiter.",
		},
		[]string{"limiter"},
	)

	authzDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_authz_denials_total",
			Help: "Permission checks that denied access.",
		},
		[]string{"resource", "action"},
	)
)

// Init registers the metrics with the default registry. Call once at
// startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		loginsTotal,
		throttleImpositions,
		rateLimitRejections,
		authzDenials,
	)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLogin counts a login attempt by outcome.
func RecordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordThrottleImposition counts a backoff rejection.
func RecordThrottleImposition() {
	throttleImpositions.Inc()
}

// RecordRateLimitRejection counts a limiter rejection for the named
// limiter config.
func RecordRateLimitRejection(limiter string) {
	rateLimitRejections.WithLabelValues(limiter).Inc()
}

// RecordAuthzDenial counts a failed permission check.
func RecordAuthzDenial(resource, action string) {
	authzDenials.WithLabelValues(resource, action).Inc()
}

// Instrument wraps a handler with RPS, latency, and in-flight tracking.
// The pattern label comes from the router's matched pattern, not the raw
// URL, to keep cardinality bounded.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
