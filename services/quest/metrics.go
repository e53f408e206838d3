package quest

import "github.com/prometheus/client_golang/prometheus"

var (
	advances = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quest_advances_total",
		Help: "Quest progress increments by goal type.",
	}, []string{"goal_type"})

	claims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quest_claims_total",
		Help: "Quest claim attempts by outcome.",
	}, []string{"result"})

	periodCompletions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quest_period_completions_total",
		Help: "Periods in which every active quest was claimed.",
	}, []string{"period"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{advances, claims, periodCompletions}
}
