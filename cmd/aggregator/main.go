package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/db"
	"refhire-rewards/pkg/health"
	"refhire-rewards/pkg/logger"
	"refhire-rewards/pkg/otelcol"
	"refhire-rewards/pkg/redis"
	"refhire-rewards/pkg/server"
	"refhire-rewards/pkg/task"
	"refhire-rewards/services/leaderboard"
)

// The aggregator app runs the daily leaderboard scheduler and the worker
// that recomputes the boards. The HTTP surface is health checks plus the
// leaderboard read API.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		health.Module,
		otelcol.Module,

		fx.Provide(provideSnowflakeNode),

		task.Client,
		task.Server,

		leaderboard.Module,
		leaderboard.SchedulerModule,
		leaderboard.WorkerModule,

		server.RouterModule,
		server.ProvideHTTPServer,

		fx.Invoke(db.Otel),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(2)
}
