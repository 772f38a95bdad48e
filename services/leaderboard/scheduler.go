package leaderboard

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/task"
)

// Scheduler enqueues one aggregation task per board once a day, at the
// configured wall-clock time.
type Scheduler struct {
	enqueuer task.Enqueuer
	hour     int
	minute   int
}

func NewScheduler(enqueuer task.Enqueuer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		enqueuer: enqueuer,
		hour:     cfg.Leaderboard.RunHour,
		minute:   cfg.Leaderboard.RunMinute,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] leaderboard scheduler started",
		zap.Int("hour", s.hour), zap.Int("minute", s.minute))

	for {
		now := time.Now()
		next := nextRunTime(now, s.hour, s.minute)

		zap.L().Info("[Scheduler] next leaderboard run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", next.Sub(now)))

		select {
		case <-time.After(next.Sub(now)):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] leaderboard scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] enqueueing leaderboard aggregation jobs")

	if err := s.EnqueueAll(ctx, start); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue leaderboard jobs", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] leaderboard jobs enqueued",
		zap.Duration("duration", time.Since(start)))
}

// EnqueueAll fans one aggregation task out per board type for the period
// containing now.
func (s *Scheduler) EnqueueAll(ctx context.Context, now time.Time) error {
	g, _ := errgroup.WithContext(ctx)
	for _, t := range AllTypes {
		t := t
		g.Go(func() error {
			at, err := NewAggregateTask(AggregatePayload{
				Type:   t,
				Period: CurrentPeriod(t, now),
			})
			if err != nil {
				return err
			}
			_, err = s.enqueuer.Enqueue(at)
			return err
		})
	}
	return g.Wait()
}

func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
