package leaderboard

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"refhire-rewards/pkg/errutil"
	"refhire-rewards/pkg/repository"
	"refhire-rewards/services/ledger"
	"refhire-rewards/services/wallet"
)

// Scoring weights for the monthly success board. The source strings
// match what the ledger rows are written with: referral payouts by the
// referral pipeline, achievement payouts by the achievement service.
const (
	hiredReferralWeight  = 10
	achievementWeight    = 5
	hiredReferralSource  = "referral_hired"
	achievementSource    = "achievement"
	defaultLeaderboardSz = 100
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		entries: repository.ProvideStore[Entry](p.DB),
	}
}

type scoreRow struct {
	UserID string
	Score  int64
	Meta   map[string]any
}

// Aggregate recomputes one (type, period) board from the source tables
// and swaps it in. Delete and insert share one transaction, so readers
// see either the previous board or the new one, never a partial board.
func (s *Service) Aggregate(ctx context.Context, t Type, period string) error {
	if !t.Valid() {
		return errutil.BadRequest("unknown leaderboard type", nil)
	}

	start, end, err := PeriodRange(t, period)
	if err != nil {
		return err
	}

	var rows []scoreRow
	switch t {
	case TypeWeeklyEarnings:
		rows, err = s.weeklyEarnings(ctx, start, end)
	case TypeMonthlySuccess:
		rows, err = s.monthlySuccess(ctx, start, end)
	}
	if err != nil {
		return err
	}

	// Ties share a score; the id ordering makes reruns deterministic.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].UserID < rows[j].UserID
	})

	entries := make([]*Entry, 0, len(rows))
	rank := int64(0)
	var prevScore int64
	for i, row := range rows {
		if i == 0 || row.Score != prevScore {
			rank++
			prevScore = row.Score
		}

		var meta datatypes.JSON
		if row.Meta != nil {
			if b, err := json.Marshal(row.Meta); err == nil {
				meta = datatypes.JSON(b)
			}
		}

		entries = append(entries, &Entry{
			ID:       s.node.Generate().String(),
			Type:     t,
			Period:   period,
			UserID:   row.UserID,
			Score:    row.Score,
			Rank:     rank,
			Metadata: meta,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Where("type = ? AND period = ?", t, period).
			Delete(&Entry{}).Error; err != nil {
			return err
		}
		return s.entries.WithTrx(tx).BatchCreate(ctx, entries)
	})
	if err != nil {
		return err
	}

	zap.L().Info("leaderboard aggregated",
		zap.String("type", string(t)),
		zap.String("period", period),
		zap.Int("entries", len(entries)))

	return nil
}

// AggregateAll recomputes the current period of every board concurrently.
func (s *Service) AggregateAll(ctx context.Context, now time.Time) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range AllTypes {
		t := t
		g.Go(func() error {
			return s.Aggregate(gctx, t, CurrentPeriod(t, now))
		})
	}
	return g.Wait()
}

// weeklyEarnings sums each user's earned refcoins over the window. Coin
// pack purchases are bought, not earned, so only earned and bonus rows
// count.
func (s *Service) weeklyEarnings(ctx context.Context, start, end time.Time) ([]scoreRow, error) {
	var results []struct {
		UserID string
		Total  int64
	}
	err := s.db.WithContext(ctx).Model(&ledger.Transaction{}).
		Select("user_id, SUM(amount) AS total").
		Where("currency = ? AND amount > 0 AND type IN ? AND created_at >= ? AND created_at < ?",
			wallet.Refcoin, []ledger.TransactionType{ledger.Earned, ledger.Bonus}, start, end).
		Group("user_id").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	rows := make([]scoreRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, scoreRow{
			UserID: r.UserID,
			Score:  r.Total,
			Meta:   map[string]any{"earned_refcoins": r.Total},
		})
	}
	return rows, nil
}

// monthlySuccess scores hired referrals and achievement completions over
// the window.
func (s *Service) monthlySuccess(ctx context.Context, start, end time.Time) ([]scoreRow, error) {
	var hires []struct {
		UserID string
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&ledger.Transaction{}).
		Select("user_id, COUNT(*) AS n").
		Where("source = ? AND amount > 0 AND created_at >= ? AND created_at < ?",
			hiredReferralSource, start, end).
		Group("user_id").
		Scan(&hires).Error
	if err != nil {
		return nil, err
	}

	// Completions come from the payout rows, not the progress table: a
	// repeatable achievement completed M times in the window leaves M
	// payout rows per currency but only one progress row.
	var payouts []struct {
		UserID   string
		SourceID string
		N        int64
	}
	err = s.db.WithContext(ctx).Model(&ledger.Transaction{}).
		Select("user_id, source_id, COUNT(*) AS n").
		Where("source = ? AND amount > 0 AND created_at >= ? AND created_at < ?",
			achievementSource, start, end).
		Group("user_id, source_id, currency").
		Scan(&payouts).Error
	if err != nil {
		return nil, err
	}

	// A completion pays out at most one row per currency, so within one
	// achievement the per-currency maximum counts repeats without double
	// counting dual-currency payouts.
	type byAchievement struct{ user, achievementID string }
	repeats := map[byAchievement]int64{}
	for _, p := range payouts {
		k := byAchievement{p.UserID, p.SourceID}
		if p.N > repeats[k] {
			repeats[k] = p.N
		}
	}

	type tally struct{ hires, completions int64 }
	byUser := map[string]*tally{}
	for _, h := range hires {
		byUser[h.UserID] = &tally{hires: h.N}
	}
	for k, n := range repeats {
		if t, ok := byUser[k.user]; ok {
			t.completions += n
		} else {
			byUser[k.user] = &tally{completions: n}
		}
	}

	rows := make([]scoreRow, 0, len(byUser))
	for userID, t := range byUser {
		rows = append(rows, scoreRow{
			UserID: userID,
			Score:  t.hires*hiredReferralWeight + t.completions*achievementWeight,
			Meta: map[string]any{
				"hired_referrals":         t.hires,
				"achievement_completions": t.completions,
			},
		})
	}
	return rows, nil
}

// GetLeaderboard returns the ranked board for a period, defaulting to the
// current one.
func (s *Service) GetLeaderboard(ctx context.Context, t Type, period string, limit int) ([]*Entry, error) {
	if !t.Valid() {
		return nil, errutil.BadRequest("unknown leaderboard type", nil)
	}
	if period == "" {
		period = CurrentPeriod(t, time.Now())
	}
	if limit <= 0 || limit > 500 {
		limit = defaultLeaderboardSz
	}

	var entries []*Entry
	err := s.db.WithContext(ctx).
		Where("type = ? AND period = ?", t, period).
		Order("rank ASC, user_id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
