package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(httpRequestsTotal, httpRequestDuration, authAttemptsTotal) }

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		},
		[]string{"route", "code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Login and token checks by result.",
		},
		[]string{"kind", "result"},
	)
)

func ObserveHTTPRequest(route, code string, seconds float64) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(seconds)
}

func IncAuthAttempt(kind, result string) {
	authAttemptsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
