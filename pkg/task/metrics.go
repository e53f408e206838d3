package task

import "github.com/prometheus/client_golang/prometheus"

var (
	processed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_tasks_processed_total",
		Help: "Asynq tasks handled, by type and result.",
	}, []string{"type", "result"})

	exhausted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_tasks_exhausted_total",
		Help: "Asynq tasks that failed their last retry.",
	}, []string{"type"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{processed, exhausted}
}
