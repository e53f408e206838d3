package streak

import "github.com/prometheus/client_golang/prometheus"

var updates = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "progression_streak_updates_total",
	Help: "Period completions recorded, by period and outcome.",
}, []string{"period", "result"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{updates}
}
