package wallet

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"refhire-rewards/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestGetOrCreate(t *testing.T) {
	db := testutil.NewTestDB(t, &Wallet{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	store := NewStore(StoreParams{DB: db, Node: node})
	ctx := context.Background()

	w, err := store.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", w.UserID)
	require.EqualValues(t, 0, w.RefcoinBalance)
	require.EqualValues(t, 0, w.PremiumTokenBalance)

	// Second access returns the same row, not a second one.
	again, err := store.GetOrCreate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, w.ID, again.ID)

	var count int64
	require.NoError(t, db.Model(&Wallet{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	_, err = store.GetOrCreate(ctx, "")
	require.Error(t, err)
}

func TestCurrencyHelpers(t *testing.T) {
	require.True(t, Refcoin.Valid())
	require.True(t, PremiumToken.Valid())
	require.False(t, Currency("doubloon").Valid())
	require.Equal(t, "refcoin", Refcoin.String())
	require.Equal(t, "", Currency("doubloon").String())

	w := &Wallet{
		RefcoinBalance:           10,
		PremiumTokenBalance:      2,
		TotalEarnedRefcoins:      15,
		TotalSpentRefcoins:       5,
		TotalEarnedPremiumTokens: 3,
		TotalSpentPremiumTokens:  1,
	}
	require.EqualValues(t, 10, w.Balance(Refcoin))
	require.EqualValues(t, 2, w.Balance(PremiumToken))
	require.EqualValues(t, 15, w.TotalEarned(Refcoin))
	require.EqualValues(t, 1, w.TotalSpent(PremiumToken))

	require.Equal(t, "refcoin_balance", BalanceColumn(Refcoin))
	require.Equal(t, "premium_token_balance", BalanceColumn(PremiumToken))
	require.Equal(t, "total_earned_premium_tokens", EarnedColumn(PremiumToken))
	require.Equal(t, "total_spent_refcoins", SpentColumn(Refcoin))
}
