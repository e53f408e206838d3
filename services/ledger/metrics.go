package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	recorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_ledger_recorded_total",
		Help: "Ledger entries created, by kind.",
	}, []string{"kind"})
	conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_ledger_conflicts_total",
		Help: "Ledger inserts that lost to an existing entry, by kind.",
	}, []string{"kind"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{recorded, conflicts}
}
