package droptable

import "github.com/prometheus/client_golang/prometheus"

var (
	rolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_droptable_rolls_total",
		Help: "Card rolls, by final rarity.",
	}, []string{"rarity"})
	pityTriggers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progression_droptable_pity_triggers_total",
		Help: "Rolls upgraded by the pity counter.",
	})
	emptyPools = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_droptable_empty_pool_total",
		Help: "Rolls that found no card for the chosen rarity and filter.",
	}, []string{"rarity"})
	catalogCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_card_catalog_cache_total",
		Help: "Card catalog snapshot lookups.",
	}, []string{"result"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{rolls, pityTriggers, emptyPools, catalogCache}
}
