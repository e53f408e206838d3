package mastery

import "go.uber.org/fx"

var Module = fx.Module("mastery.service",
	fx.Provide(
		ProvideTrackRules,
		NewService,
	),
)
