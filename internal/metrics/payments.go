package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentsInitiatedTotal,
		paymentsSettledTotal,
		callbacksTotal,
		activationsTotal,
		gatewayRequestsTotal,
		gatewayLatency,
	)
}

var (
	paymentsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ajirinow_payments_initiated_total",
			Help: "STK push requests accepted by the gateway, by purpose.",
		},
		[]string{"purpose"},
	)

	paymentsSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ajirinow_payments_settled_total",
			Help: "Ledger entries moved out of Pending, by purpose and terminal status.",
		},
		[]string{"purpose", "status"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ajirinow_payment_callbacks_total",
			Help: "Gateway callbacks received, by outcome (applied/duplicate/unmatched/invalid).",
		},
		[]string{"outcome"},
	)

	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ajirinow_activations_total",
			Help: "Side effects applied on completion, by kind and whether a target was found.",
		},
		[]string{"kind", "result"},
	)

	gatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ajirinow_gateway_requests_total",
			Help: "Outbound M-Pesa calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	gatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ajirinow_gateway_request_duration_seconds",
			Help:    "Latency of outbound M-Pesa calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func IncPaymentInitiated(purpose string) {
	paymentsInitiatedTotal.WithLabelValues(norm(purpose)).Inc()
}

func IncPaymentSettled(purpose, status string) {
	paymentsSettledTotal.WithLabelValues(norm(purpose), norm(status)).Inc()
}

func IncCallback(outcome string) {
	callbacksTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncActivation(kind string, found bool) {
	result := "activated"
	if !found {
		result = "no_target"
	}
	activationsTotal.WithLabelValues(norm(kind), result).Inc()
}

func ObserveGateway(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayRequestsTotal.WithLabelValues(norm(op), result).Inc()
	gatewayLatency.WithLabelValues(norm(op)).Observe(time.Since(started).Seconds())
}
