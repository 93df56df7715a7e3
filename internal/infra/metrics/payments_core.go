package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		callbacksTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment lifecycle events (authorized/captured/cancelled/refunded/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Captured amount in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)

	// result: processed|rejected|unauthorized|invalid|error
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbacks_total",
			Help: "Inbound gateway callbacks by processing result.",
		},
		[]string{"result"},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncCallback(result string) {
	callbacksTotal.WithLabelValues(norm(result)).Inc()
}
