package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(renewalsTotal) }

var renewalsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "renewals_total",
		Help: "Recurring subscription charges by result.",
	},
	[]string{"result"}, // 'charged', 'declined', 'error'
)

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}
