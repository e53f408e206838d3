package droptable

import "go.uber.org/fx"

var Module = fx.Module("droptable.service",
	fx.Provide(
		provideStoreCatalog,
		func(c *StoreCatalog) Catalog { return c },
		providePityStore,
		NewService,
	),
)
