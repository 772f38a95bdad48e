package leaderboard

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const TypeAggregate = "leaderboard:aggregate"

type AggregatePayload struct {
	Type   Type   `json:"type"`
	Period string `json:"period"`
}

func NewAggregateTask(p AggregatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAggregate, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("leaderboard")), nil
}

// HandleAggregateTask recomputes one board. Aggregation replaces the
// whole board, so a retried task simply recomputes the same result.
func (s *Service) HandleAggregateTask(ctx context.Context, t *asynq.Task) error {
	var p AggregatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		zap.L().Error("malformed aggregate payload", zap.Error(err))
		return nil // not retryable
	}

	ctx, span := otel.Tracer("refhire-rewards/worker").Start(ctx, TypeAggregate,
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	return s.Aggregate(ctx, p.Type, p.Period)
}
