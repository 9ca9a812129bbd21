package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway-side HTTP metrics.
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
)

// Upstream-facing metrics: every call the gateway or CLI makes against the
// ReportMitra backend, plus the token refresh outcomes.
var (
	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Requests issued against the ReportMitra backend.",
		},
		[]string{"method", "status"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_total",
			Help: "Access-token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		upstreamRequestsTotal, tokenRefreshTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUpstream records one backend call and its resulting HTTP status
// ("error" when the request never produced a response).
func ObserveUpstream(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamRequestsTotal.WithLabelValues(method, label).Inc()
}

// ObserveTokenRefresh records a refresh attempt outcome: "success",
// "rejected" or "missing".
func ObserveTokenRefresh(outcome string) {
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// CanonicalPath collapses per-entity URL segments so tracking ids and userids
// do not explode the metric label space.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}

	if rest, ok := strings.CutPrefix(p, "/restapi/issues/"); ok && rest != "" {
		parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
		switch len(parts) {
		case 1:
			return "/restapi/issues/:id"
		case 2:
			switch parts[1] {
			case "status", "resolve", "pdf":
				return "/restapi/issues/:id/" + parts[1]
			}
		}
		return p
	}

	if rest, ok := strings.CutPrefix(p, "/api/users/"); ok && rest != "" {
		parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
		if len(parts) == 2 {
			switch parts[1] {
			case "delete", "toggle-status":
				return "/api/users/:id/" + parts[1]
			}
		}
		return p
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpInFlight.Dec()
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	})
}
