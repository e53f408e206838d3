package inventory

import "github.com/prometheus/client_golang/prometheus"

var (
	itemsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_inventory_items_total",
		Help: "Inventory items created, by source type.",
	}, []string{"source_type"})
	assetResolutions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_inventory_asset_resolutions_total",
		Help: "Asset resolution outcomes.",
	}, []string{"result"})
)

func Collectors() []prometheus.Collector {
	return []prometheus.Collector{itemsCreated, assetResolutions}
}
