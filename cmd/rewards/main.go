package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/db"
	"refhire-rewards/pkg/health"
	"refhire-rewards/pkg/logger"
	"refhire-rewards/pkg/otelcol"
	"refhire-rewards/pkg/redis"
	"refhire-rewards/pkg/server"
	"refhire-rewards/pkg/task"
	"refhire-rewards/services/achievement"
	"refhire-rewards/services/leaderboard"
	"refhire-rewards/services/ledger"
	"refhire-rewards/services/reward"
	"refhire-rewards/services/wallet"
)

// The rewards app serves the public API and consumes activity events.
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

		wallet.Module,
		ledger.Module,
		achievement.Module,
		achievement.WorkerModule,
		reward.Module,
		leaderboard.Module,

		server.RouterModule,
		server.ProvideHTTPServer,

		fx.Invoke(autoMigrate),
		fx.Invoke(db.Otel, db.Metric),
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
	return snowflake.NewNode(1)
}

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&wallet.Wallet{},
		&ledger.Transaction{},
		&achievement.Achievement{},
		&achievement.UserAchievementProgress{},
		&reward.RewardItem{},
		&reward.RewardPurchase{},
		&reward.CoinPack{},
		&leaderboard.Entry{},
	)
}
