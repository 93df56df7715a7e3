package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		gatewayRequestsTotal,
		gatewayRequestDuration,
	)
}

var (
	// status is the HTTP status code, or "error" when no response was received.
	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound CoolPay API calls by method and status.",
		},
		[]string{"method", "status"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of outbound CoolPay API calls in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"method"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveGatewayRequest(method, status string, d time.Duration) {
	gatewayRequestsTotal.WithLabelValues(norm(method), norm(status)).Inc()
	gatewayRequestDuration.WithLabelValues(norm(method)).Observe(d.Seconds())
}
