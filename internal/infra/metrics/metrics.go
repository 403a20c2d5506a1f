// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		creditsConsumedTotal,
		ledgerDenialsTotal,
		ledgerConsumeConflicts,
		ledgerResetsTotal,
	)
}

var (
	creditsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_credits_consumed_total",
			Help: "Credits debited from ledgers, by plan.",
		},
		[]string{"plan"},
	)

	ledgerDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_denials_total",
			Help: "Operations refused by the entitlement guard, by reason.",
		},
		[]string{"reason"},
	)

	// retries lost to a concurrent writer on the same ledger version
	ledgerConsumeConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_consume_conflicts_total",
			Help: "Version conflicts observed while debiting credits.",
		},
	)

	ledgerResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_resets_total",
			Help: "Ledger resets by target plan.",
		},
		[]string{"plan"},
	)
)

func AddCreditsConsumed(plan string, n int64) {
	if n <= 0 {
		return
	}
	creditsConsumedTotal.WithLabelValues(norm(plan)).Add(float64(n))
}

func IncLedgerDenial(reason string) {
	ledgerDenialsTotal.WithLabelValues(norm(reason)).Inc()
}

func IncConsumeConflict() { ledgerConsumeConflicts.Inc() }

func IncLedgerReset(plan string) {
	ledgerResetsTotal.WithLabelValues(norm(plan)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
