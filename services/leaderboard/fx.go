package leaderboard

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("leaderboard.service",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(func(h *Handler, r *gin.Engine) {
		h.RegisterRoutes(r)
	}),
)

// SchedulerModule runs the daily enqueue loop.
var SchedulerModule = fx.Module("leaderboard.scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)

// WorkerModule consumes the aggregation queue.
var WorkerModule = fx.Module("leaderboard.worker",
	fx.Invoke(func(svc *Service, mux *asynq.ServeMux) {
		mux.HandleFunc(TypeAggregate, svc.HandleAggregateTask)
	}),
)
