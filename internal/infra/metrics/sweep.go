package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgersDemotedTotal, sweepRunsTotal, ledgersByPlan) }

var (
	ledgersDemotedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgers_demoted_total",
			Help: "Expired ledgers moved back to the free plan.",
		},
		[]string{"trigger"}, // lazy|sweep
	)

	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweep_runs_total",
			Help: "Expiry sweep executions by result.",
		},
		[]string{"result"},
	)

	ledgersByPlan = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgers_by_plan",
			Help: "Current number of ledgers on each plan.",
		},
		[]string{"plan"},
	)
)

func AddLedgersDemoted(trigger string, n int) {
	if n <= 0 {
		return
	}
	ledgersDemotedTotal.WithLabelValues(norm(trigger)).Add(float64(n))
}

func IncSweepRun(result string) {
	sweepRunsTotal.WithLabelValues(norm(result)).Inc()
}

func SetLedgersByPlan(counts map[string]int) {
	for plan, n := range counts {
		ledgersByPlan.WithLabelValues(norm(plan)).Set(float64(n))
	}
}
