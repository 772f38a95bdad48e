package achievement

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("achievement.service",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(func(h *Handler, r *gin.Engine) {
		h.RegisterRoutes(r)
	}),
)

// WorkerModule hangs the event consumer off the shared asynq mux.
var WorkerModule = fx.Module("achievement.worker",
	fx.Invoke(func(svc *Service, mux *asynq.ServeMux) {
		mux.HandleFunc(TypeCheckAward, svc.HandleCheckAwardTask)
	}),
)
