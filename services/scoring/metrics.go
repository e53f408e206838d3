package scoring

import "github.com/prometheus/client_golang/prometheus"

var events = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "progression_scoring_events_total",
	Help: "Scored events handled, by type and outcome.",
}, []string{"type", "result"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{events}
}
