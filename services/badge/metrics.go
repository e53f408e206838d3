package badge

import "github.com/prometheus/client_golang/prometheus"

var granted = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "progression_badges_granted_total",
	Help: "Badges granted, by source.",
}, []string{"source"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{granted}
}
