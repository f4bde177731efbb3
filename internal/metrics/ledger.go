package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ledger Prometheus metrics.
var (
	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tailorly",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by outcome",
		},
		// result: ok, refreshed, noop, quota_exceeded, not_found, invalid, conflict_exhausted, error
		[]string{"op", "result"},
	)

	LedgerCreditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tailorly",
			Name:      "ledger_credits_total",
			Help:      "Credits moved through the ledger",
		},
		// kind: held, committed, released, expired, granted
		[]string{"kind"},
	)

	LedgerMalformedHoldsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tailorly",
			Name:      "ledger_malformed_holds_total",
			Help:      "Hold records skipped by the expiry sweep",
		},
	)

	LedgerTransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tailorly",
			Name:      "ledger_transaction_duration_seconds",
			Help:      "Duration of ledger store transactions including retries",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	PolicyRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tailorly",
			Name:      "policy_refresh_total",
			Help:      "Access policy reloads by source",
		},
		// source: store, fallback, interrupted
		[]string{"source"},
	)
)

var ledgerMetricsRegistered bool

// RegisterLedgerMetrics registers ledger metrics. Must be called once from main.
func RegisterLedgerMetrics() {
	if ledgerMetricsRegistered {
		return
	}
	prometheus.MustRegister(LedgerOperationsTotal)
	prometheus.MustRegister(LedgerCreditsTotal)
	prometheus.MustRegister(LedgerMalformedHoldsTotal)
	prometheus.MustRegister(LedgerTransactionDuration)
	prometheus.MustRegister(PolicyRefreshTotal)
	ledgerMetricsRegistered = true
}
