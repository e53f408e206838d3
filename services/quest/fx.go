package quest

import "go.uber.org/fx"

var Module = fx.Module("quest.service",
	fx.Provide(
		NewDefinitionStore,
		NewService,
	),
)
