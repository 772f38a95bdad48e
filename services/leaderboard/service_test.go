package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"refhire-rewards/services/ledger"
	"refhire-rewards/services/testutil"
	"refhire-rewards/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := testutil.NewTestDB(t, &ledger.Transaction{}, &Entry{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Node: node})
	return svc, db, node
}

func seedTxn(t *testing.T, db *gorm.DB, node *snowflake.Node, userID string, txType ledger.TransactionType, currency wallet.Currency, amount int64, source string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&ledger.Transaction{
		ID:        node.Generate().String(),
		WalletID:  "w-" + userID,
		UserID:    userID,
		Type:      txType,
		Currency:  currency,
		Amount:    amount,
		Status:    ledger.StatusCompleted,
		Source:    source,
		CreatedAt: at,
	}).Error)
}

// seedPayout writes the ledger rows one achievement completion leaves
// behind, one row per paid currency.
func seedPayout(t *testing.T, db *gorm.DB, node *snowflake.Node, userID, achievementID string, at time.Time, currencies ...wallet.Currency) {
	t.Helper()
	for _, c := range currencies {
		require.NoError(t, db.Create(&ledger.Transaction{
			ID:        node.Generate().String(),
			WalletID:  "w-" + userID,
			UserID:    userID,
			Type:      ledger.Earned,
			Currency:  c,
			Amount:    10,
			Status:    ledger.StatusCompleted,
			Source:    "achievement",
			SourceID:  achievementID,
			CreatedAt: at,
		}).Error)
	}
}

func TestAggregateWeeklyEarnings(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	inWeek := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC) // Wednesday, week 35
	period := CurrentPeriod(TypeWeeklyEarnings, inWeek)
	require.Equal(t, "2026-W35", period)

	seedTxn(t, db, node, "alice", ledger.Earned, wallet.Refcoin, 300, "achievement", inWeek)
	seedTxn(t, db, node, "alice", ledger.Bonus, wallet.Refcoin, 50, "coin_pack", inWeek)
	seedTxn(t, db, node, "bob", ledger.Earned, wallet.Refcoin, 350, "achievement", inWeek)
	seedTxn(t, db, node, "carol", ledger.Earned, wallet.Refcoin, 100, "achievement", inWeek)

	// Excluded: bought coins, premium tokens, spends, other weeks.
	seedTxn(t, db, node, "carol", ledger.Purchased, wallet.Refcoin, 9999, "coin_pack", inWeek)
	seedTxn(t, db, node, "carol", ledger.Earned, wallet.PremiumToken, 9999, "achievement", inWeek)
	seedTxn(t, db, node, "alice", ledger.Spent, wallet.Refcoin, -200, "reward_purchase", inWeek)
	seedTxn(t, db, node, "dave", ledger.Earned, wallet.Refcoin, 500, "achievement", inWeek.AddDate(0, 0, -10))

	require.NoError(t, svc.Aggregate(ctx, TypeWeeklyEarnings, period))

	entries, err := svc.GetLeaderboard(ctx, TypeWeeklyEarnings, period, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// alice and bob tie at 350 and share rank 1 ordered by user id;
	// carol takes the next dense rank.
	require.Equal(t, "alice", entries[0].UserID)
	require.EqualValues(t, 350, entries[0].Score)
	require.EqualValues(t, 1, entries[0].Rank)
	require.Equal(t, "bob", entries[1].UserID)
	require.EqualValues(t, 1, entries[1].Rank)
	require.Equal(t, "carol", entries[2].UserID)
	require.EqualValues(t, 100, entries[2].Score)
	require.EqualValues(t, 2, entries[2].Rank)
}

func TestAggregateReplacesBoard(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	period := CurrentPeriod(TypeWeeklyEarnings, at)

	seedTxn(t, db, node, "alice", ledger.Earned, wallet.Refcoin, 100, "achievement", at)
	require.NoError(t, svc.Aggregate(ctx, TypeWeeklyEarnings, period))
	require.NoError(t, svc.Aggregate(ctx, TypeWeeklyEarnings, period))

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// New activity lands in the recomputed board.
	seedTxn(t, db, node, "bob", ledger.Earned, wallet.Refcoin, 200, "achievement", at)
	require.NoError(t, svc.Aggregate(ctx, TypeWeeklyEarnings, period))

	entries, err := svc.GetLeaderboard(ctx, TypeWeeklyEarnings, period, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bob", entries[0].UserID)
}

func TestAggregateMonthlySuccess(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	inMonth := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	period := CurrentPeriod(TypeMonthlySuccess, inMonth)
	require.Equal(t, "2026-08", period)

	// alice: 2 hires + 1 completion = 25; bob: 3 completions = 15.
	seedTxn(t, db, node, "alice", ledger.Earned, wallet.Refcoin, 500, "referral_hired", inMonth)
	seedTxn(t, db, node, "alice", ledger.Earned, wallet.Refcoin, 500, "referral_hired", inMonth)

	// A completion paying both currencies still counts once.
	seedPayout(t, db, node, "alice", "ach-1", inMonth, wallet.Refcoin, wallet.PremiumToken)

	// A repeatable achievement completed twice counts twice.
	seedPayout(t, db, node, "bob", "ach-1", inMonth, wallet.Refcoin)
	seedPayout(t, db, node, "bob", "ach-1", inMonth.AddDate(0, 0, 3), wallet.Refcoin)
	seedPayout(t, db, node, "bob", "ach-2", inMonth, wallet.Refcoin)

	// Outside the month.
	seedPayout(t, db, node, "carol", "ach-1", inMonth.AddDate(0, -1, 0), wallet.Refcoin)

	require.NoError(t, svc.Aggregate(ctx, TypeMonthlySuccess, period))

	entries, err := svc.GetLeaderboard(ctx, TypeMonthlySuccess, period, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "alice", entries[0].UserID)
	require.EqualValues(t, 25, entries[0].Score)
	require.Equal(t, "bob", entries[1].UserID)
	require.EqualValues(t, 15, entries[1].Score)
}

func TestAggregateRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.Error(t, svc.Aggregate(ctx, Type("bogus"), "2026-W35"))
	require.Error(t, svc.Aggregate(ctx, TypeWeeklyEarnings, "not-a-period"))
	require.Error(t, svc.Aggregate(ctx, TypeMonthlySuccess, "2026-W35"))

	_, err := svc.GetLeaderboard(ctx, Type("bogus"), "", 10)
	require.Error(t, err)
}

func TestGetLeaderboardLimit(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	period := CurrentPeriod(TypeWeeklyEarnings, at)

	users := []string{"u1", "u2", "u3", "u4"}
	for i, u := range users {
		seedTxn(t, db, node, u, ledger.Earned, wallet.Refcoin, int64(100*(i+1)), "achievement", at)
	}
	require.NoError(t, svc.Aggregate(ctx, TypeWeeklyEarnings, period))

	top2, err := svc.GetLeaderboard(ctx, TypeWeeklyEarnings, period, 2)
	require.NoError(t, err)
	require.Len(t, top2, 2)
	require.Equal(t, "u4", top2[0].UserID)
	require.Equal(t, "u3", top2[1].UserID)
}

func TestPeriodHelpers(t *testing.T) {
	// Year boundary: 2026-01-01 belongs to ISO week 2026-W01.
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-W01", CurrentPeriod(TypeWeeklyEarnings, jan1))
	require.Equal(t, "2026-01", CurrentPeriod(TypeMonthlySuccess, jan1))

	start, end, err := PeriodRange(TypeWeeklyEarnings, "2026-W35")
	require.NoError(t, err)
	require.Equal(t, time.Monday, start.Weekday())
	require.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, start.AddDate(0, 0, 7), end)

	start, end, err = PeriodRange(TypeMonthlySuccess, "2026-02")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = PeriodRange(TypeWeeklyEarnings, "2026-W99")
	require.Error(t, err)
}
