package leaderboard

import "github.com/prometheus/client_golang/prometheus"

var submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "progression_leaderboard_submissions_total",
	Help: "Score submissions by whether they raised the stored best.",
}, []string{"result"})

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{submissions}
}
