package scoring

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("scoring.publisher",
	fx.Provide(NewPublisher),
)

var TaskModule = fx.Module("task.scoring",
	fx.Provide(NewTask),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(TypeQuizCompleted, t.HandleQuizCompleted)
	mux.HandleFunc(TypeStreamLogged, t.HandleStreamLogged)
}
