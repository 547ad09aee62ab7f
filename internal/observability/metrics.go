package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by route, method and status class.",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route", "method"})

	authEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_events_total",
		Help: "Authentication lifecycle events.",
	}, []string{"event"})

	rateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"scope"})

	sessionsSweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_swept_total",
		Help: "Expired sessions removed by the background sweeper.",
	}, []string{"kind"})
)

// RecordHTTPRequest is called by the metrics middleware once per request.
func RecordHTTPRequest(route, method string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

func RecordAuthEvent(event string) {
	authEventsTotal.WithLabelValues(event).Inc()
}

func RecordRateLimitRejection(scope string) {
	rateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

func RecordSessionsSwept(kind string, n int64) {
	sessionsSweptTotal.WithLabelValues(kind).Add(float64(n))
}

// MetricsHandler exposes the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
