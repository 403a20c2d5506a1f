package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgerStoreConns, ledgerStoreStarved) }

var (
	// state is one of max, open, idle, acquired
	ledgerStoreConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_store_connections",
			Help:      "Postgres connections held for accounts, ledgers and payments, by state.",
		},
		[]string{"state"},
	)

	ledgerStoreStarved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_store_starved_acquires",
			Help:      "Connection acquires that found the pool empty and had to wait, since start.",
		},
	)
)

// SetLedgerStorePool publishes a snapshot of the Postgres pool.
func SetLedgerStorePool(max, open, idle, acquired int32, starved int64) {
	ledgerStoreConns.WithLabelValues("max").Set(float64(max))
	ledgerStoreConns.WithLabelValues("open").Set(float64(open))
	ledgerStoreConns.WithLabelValues("idle").Set(float64(idle))
	ledgerStoreConns.WithLabelValues("acquired").Set(float64(acquired))
	ledgerStoreStarved.Set(float64(starved))
}
