package achievement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const TypeCheckAward = "achievement:check_award"

// ActivityEventPayload is the activity event upstream services publish
// when a user does something reward-relevant. Context carries the
// action-specific attributes the requirement evaluators read.
type ActivityEventPayload struct {
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Context    map[string]any `json:"context,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewCheckAwardTask(p ActivityEventPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCheckAward, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
		asynq.Queue("events")), nil
}

// HandleCheckAwardTask is the asynq worker entry. Delivery is
// at-least-once; CheckAndAward's payout guards absorb redeliveries.
func (s *Service) HandleCheckAwardTask(ctx context.Context, t *asynq.Task) error {
	var p ActivityEventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		zap.L().Error("malformed activity event payload", zap.Error(err))
		return nil // not retryable
	}

	ctx, span := otel.Tracer("refhire-rewards/worker").Start(ctx, TypeCheckAward,
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	results, err := s.CheckAndAward(ctx, p.UserID, p.Action, p.Context)
	if err != nil {
		return err
	}

	if len(results) > 0 {
		zap.L().Info("activity event awarded achievements",
			zap.String("user_id", p.UserID),
			zap.String("action", p.Action),
			zap.Int("completions", len(results)))
	}
	return nil
}
