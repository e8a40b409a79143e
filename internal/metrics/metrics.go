package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Transactions reaching a terminal state",
		},
		[]string{"state"}, // approved|declined
	)

	DuplicateNotifications = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_duplicate_notifications_total",
			Help: "Webhook redeliveries and race-losing reconciliation attempts",
		},
	)

	GatewayInitiateFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_initiate_failures_total",
			Help: "Charge initiations that never reached a verdict",
		},
		[]string{"gateway"},
	)

	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sideeffect_failures_total",
			Help: "Approved transactions whose side effect needs manual reconciliation",
		},
		[]string{"kind"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(
		TransactionsTotal,
		DuplicateNotifications,
		GatewayInitiateFailures,
		SideEffectFailures,
		HTTPLatency,
	)
}
