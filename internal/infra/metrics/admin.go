package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminActionTotal) }

var adminActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_action_total",
		Help: "Operator transaction actions by action and outcome.",
	},
	[]string{"action", "status"}, // status: 'ok', 'not_allowed', 'error'
)

func IncAdminAction(action, status string) {
	adminActionTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
