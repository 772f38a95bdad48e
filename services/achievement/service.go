package achievement

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/db/option"
	"refhire-rewards/pkg/errutil"
	"refhire-rewards/pkg/repository"
	"refhire-rewards/services/ledger"
	"refhire-rewards/services/wallet"
)

const payoutSource = "achievement"

// Service is the achievement engine: it matches activity events against
// the catalog, tracks per-user progress, and pays completions out through
// the ledger inside the same database transaction.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger *ledger.Service
	cache  *CatalogCache

	achievements repository.Repository[Achievement]
	progress     repository.Repository[UserAchievementProgress]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	ttl := p.Config.Rewards.CatalogCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}

	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: p.Ledger,
		cache:  NewCatalogCache(ttl),

		achievements: repository.ProvideStore[Achievement](p.DB),
		progress:     repository.ProvideStore[UserAchievementProgress](p.DB),
	}
}

// CheckAndAward processes one activity event. Each matching achievement is
// handled in its own transaction; the progress-row constraints make a
// redelivered event a no-op for payouts, so the caller may safely retry.
func (s *Service) CheckAndAward(ctx context.Context, userID, action string, event map[string]any) ([]*AwardResult, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if action == "" {
		return nil, errutil.BadRequest("action is required", nil)
	}

	entries, err := s.activeForAction(ctx, action)
	if err != nil {
		return nil, err
	}

	var (
		results []*AwardResult
		errs    []error
	)
	for _, entry := range entries {
		result, err := s.processOne(ctx, userID, entry, event)
		if err != nil {
			zap.L().Error("achievement processing failed",
				zap.String("user_id", userID),
				zap.String("achievement_id", entry.achievement.ID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if result != nil {
			results = append(results, result)
		}
	}

	return results, errors.Join(errs...)
}

func (s *Service) activeForAction(ctx context.Context, action string) ([]*catalogEntry, error) {
	return s.cache.GetOrLoad(action, func() ([]*catalogEntry, error) {
		all, err := s.achievements.Find(ctx, &Achievement{IsActive: true})
		if err != nil {
			return nil, err
		}

		now := time.Now()
		entries := make([]*catalogEntry, 0, len(all))
		for _, a := range all {
			req, err := a.ParseRequirement()
			if err != nil {
				zap.L().Warn("skipping achievement with bad requirement",
					zap.String("achievement_id", a.ID), zap.Error(err))
				continue
			}
			if req.Action != action {
				continue
			}
			entries = append(entries, &catalogEntry{achievement: a, requirement: req, loadedAt: now})
		}
		return entries, nil
	})
}

func (s *Service) processOne(ctx context.Context, userID string, entry *catalogEntry, event map[string]any) (*AwardResult, error) {
	a := entry.achievement
	req := entry.requirement

	var result *AwardResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := s.ensureProgressTx(ctx, tx, userID, a, req)
		if err != nil {
			return err
		}

		if p.Completed && !a.Repeatable {
			return nil
		}
		if a.Repeatable && a.MaxCompletions != nil && p.CompletionCount >= *a.MaxCompletions {
			return nil
		}

		qualified, err := evaluate(req, p, event)
		if err != nil {
			return err
		}

		if !qualified {
			return s.progress.WithTrx(tx).Update(ctx, p.ID, map[string]any{
				"progress": p.Progress,
				"meta":     p.Meta,
			})
		}

		granted, err := s.completeTx(ctx, tx, a, p)
		if err != nil || !granted {
			return err
		}

		if a.RewardRefcoins > 0 {
			if _, err := s.ledger.AddCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:      userID,
				Currency:    wallet.Refcoin,
				Amount:      a.RewardRefcoins,
				Source:      payoutSource,
				SourceID:    a.ID,
				Description: a.Name,
			}); err != nil {
				return err
			}
		}
		if a.RewardPremiumTokens > 0 {
			if _, err := s.ledger.AddCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:      userID,
				Currency:    wallet.PremiumToken,
				Amount:      a.RewardPremiumTokens,
				Source:      payoutSource,
				SourceID:    a.ID,
				Description: a.Name,
			}); err != nil {
				return err
			}
		}

		result = &AwardResult{
			AchievementID:        a.ID,
			Code:                 a.Code,
			RefcoinsAwarded:      a.RewardRefcoins,
			PremiumTokensAwarded: a.RewardPremiumTokens,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result != nil {
		span := trace.SpanFromContext(ctx)
		zap.L().Info("achievement completed",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("user_id", userID),
			zap.String("code", a.Code),
			zap.Int64("refcoins", a.RewardRefcoins),
			zap.Int64("premium_tokens", a.RewardPremiumTokens))
	}

	return result, nil
}

// ensureProgressTx creates the progress row on first contact and returns
// it locked FOR UPDATE. The conflict-ignoring insert makes two concurrent
// first events converge on the same row.
func (s *Service) ensureProgressTx(ctx context.Context, tx *gorm.DB, userID string, a *Achievement, req *Requirement) (*UserAchievementProgress, error) {
	row := &UserAchievementProgress{
		ID:            s.node.Generate().String(),
		UserID:        userID,
		AchievementID: a.ID,
		MaxProgress:   requirementTarget(req),
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}

	p, err := s.progress.WithTrx(tx).FindOne(ctx,
		&UserAchievementProgress{UserID: userID, AchievementID: a.ID},
		option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.Internal("progress row missing after upsert", nil)
	}
	return p, nil
}

// completeTx flips the progress row to completed. The guarded UPDATE is
// the single payout gate: zero rows affected means another delivery of
// the same event won the race and this one must not pay.
func (s *Service) completeTx(ctx context.Context, tx *gorm.DB, a *Achievement, p *UserAchievementProgress) (bool, error) {
	now := time.Now()
	rewarded := a.RewardRefcoins + a.RewardPremiumTokens

	updates := map[string]any{
		"progress":         p.Progress,
		"meta":             p.Meta,
		"completed":        true,
		"completed_at":     now,
		"completion_count": p.CompletionCount + 1,
		"coins_rewarded":   gorm.Expr("coins_rewarded + ?", rewarded),
	}

	query := tx.WithContext(ctx).Model(&UserAchievementProgress{})
	if a.Repeatable {
		// Repeatable achievements reset their counter for the next cycle.
		updates["progress"] = int64(0)
		updates["meta"] = nil
		query = query.Where("id = ? AND completion_count = ?", p.ID, p.CompletionCount)
	} else {
		query = query.Where("id = ? AND completed = ?", p.ID, false)
	}

	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// GetUserAchievements returns the full active catalog joined with the
// user's progress; achievements never touched come back zeroed.
func (s *Service) GetUserAchievements(ctx context.Context, userID string) ([]*UserAchievement, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	catalog, err := s.achievements.Find(ctx, &Achievement{IsActive: true})
	if err != nil {
		return nil, err
	}

	rows, err := s.progress.Find(ctx, &UserAchievementProgress{UserID: userID})
	if err != nil {
		return nil, err
	}
	byAchievement := make(map[string]*UserAchievementProgress, len(rows))
	for _, p := range rows {
		byAchievement[p.AchievementID] = p
	}

	out := make([]*UserAchievement, 0, len(catalog))
	for _, a := range catalog {
		ua := &UserAchievement{Achievement: a, MaxProgress: 1}
		if req, err := a.ParseRequirement(); err == nil {
			ua.MaxProgress = requirementTarget(req)
		}
		if p, ok := byAchievement[a.ID]; ok {
			ua.Progress = p.Progress
			ua.MaxProgress = p.MaxProgress
			ua.Completed = p.Completed
			ua.CompletedAt = p.CompletedAt
			ua.CompletionCount = p.CompletionCount
		}
		out = append(out, ua)
	}
	return out, nil
}

// GetEarningOpportunities lists the active achievements the user can still
// earn coins from, with the potential payout.
func (s *Service) GetEarningOpportunities(ctx context.Context, userID string) ([]*Opportunity, error) {
	all, err := s.GetUserAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*Opportunity, 0, len(all))
	for _, ua := range all {
		a := ua.Achievement
		if ua.Completed && !a.Repeatable {
			continue
		}
		if a.Repeatable && a.MaxCompletions != nil && ua.CompletionCount >= *a.MaxCompletions {
			continue
		}

		op := &Opportunity{
			Achievement:       a,
			Progress:          ua.Progress,
			MaxProgress:       ua.MaxProgress,
			PotentialRefcoins: a.RewardRefcoins,
			PotentialPremium:  a.RewardPremiumTokens,
		}
		if a.Repeatable && a.MaxCompletions != nil {
			remaining := *a.MaxCompletions - ua.CompletionCount
			op.RemainingCompletion = &remaining
		}
		out = append(out, op)
	}
	return out, nil
}
