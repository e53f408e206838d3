package mastery

import "github.com/prometheus/client_golang/prometheus"

var (
	xpAdded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_mastery_xp_added_total",
		Help: "Scaled XP added to mastery tracks.",
	}, []string{"kind"})

	levelAwards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_mastery_level_awards_total",
		Help: "Per-level card awards.",
	}, []string{"kind"})

	milestoneClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_mastery_milestone_claims_total",
		Help: "Milestone claim attempts by outcome.",
	}, []string{"result"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{xpAdded, levelAwards, milestoneClaims}
}
