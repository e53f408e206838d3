package inventory

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(
		NewService,
		NewTask,
		provideResolver,
	),
)

// Worker registers the inventory task handlers on the asynq mux.
var Worker = fx.Module("inventory.worker",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(TypeResolveAsset, t.HandleResolveAsset)
}
