package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(accountCacheLookups, accountCacheEvictions) }

var (
	// result is hit, miss or bypass; ledger writes and their pre-reads bypass
	accountCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_cache_lookups_total",
			Help:      "Account reads served through the Redis account cache, by result.",
		},
		[]string{"result"},
	)

	accountCacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_cache_evictions_total",
			Help:      "Cached accounts dropped because their ledger or profile changed.",
		},
	)
)

func IncAccountCacheLookup(result string) {
	accountCacheLookups.WithLabelValues(norm(result)).Inc()
}

func IncAccountCacheEviction() {
	accountCacheEvictions.Inc()
}
