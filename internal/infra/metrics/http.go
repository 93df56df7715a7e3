package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(httpRequestsTotal) }

var httpRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Inbound HTTP requests by route pattern and status code.",
	},
	[]string{"route", "code"},
)

func IncHTTPRequest(route, code string) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
