package balance

import "github.com/prometheus/client_golang/prometheus"

var credited = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "progression_balance_credited_total",
	Help: "Currency credited to wallets.",
}, []string{"currency"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{credited}
}
