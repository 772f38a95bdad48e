package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"refhire-rewards/pkg/config"
	"refhire-rewards/services/testutil"
	"refhire-rewards/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &wallet.Wallet{}, &Transaction{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Rewards.RefcoinValueCents = 1
	cfg.Rewards.PremiumTokenValueCents = 100

	svc := NewService(ServiceParams{
		DB:     db,
		Node:   node,
		Config: cfg,
		Wallets: wallet.NewStore(wallet.StoreParams{
			DB:   db,
			Node: node,
		}),
	})
	return svc, db
}

func TestAddCoins(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	res, err := svc.AddCoins(ctx, MutationParams{
		UserID:   "user-1",
		Currency: wallet.Refcoin,
		Amount:   100,
		Source:   "achievement",
		SourceID: "ach-1",
	})
	require.NoError(t, err)
	require.EqualValues(t, 100, res.Balance)
	require.EqualValues(t, 100, res.Transaction.Amount)
	require.EqualValues(t, 100, res.Transaction.BalanceAfter)
	require.Equal(t, Earned, res.Transaction.Type)
	require.Equal(t, StatusCompleted, res.Transaction.Status)

	var w wallet.Wallet
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&w).Error)
	require.EqualValues(t, 100, w.RefcoinBalance)
	require.EqualValues(t, 100, w.TotalEarnedRefcoins)
	require.EqualValues(t, 0, w.PremiumTokenBalance)
}

func TestAddCoinsValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{UserID: "", Currency: wallet.Refcoin, Amount: 10, Source: "x"})
	require.Error(t, err)

	_, err = svc.AddCoins(ctx, MutationParams{UserID: "u", Currency: "doubloon", Amount: 10, Source: "x"})
	require.Error(t, err)

	_, err = svc.AddCoins(ctx, MutationParams{UserID: "u", Currency: wallet.Refcoin, Amount: 0, Source: "x"})
	require.Error(t, err)

	_, err = svc.AddCoins(ctx, MutationParams{UserID: "u", Currency: wallet.Refcoin, Amount: 10, Source: ""})
	require.Error(t, err)
}

func TestSpendCoins(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 100, Source: "achievement",
	})
	require.NoError(t, err)

	res, err := svc.SpendCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 40, Source: "reward_purchase",
	})
	require.NoError(t, err)
	require.EqualValues(t, 60, res.Balance)
	require.EqualValues(t, -40, res.Transaction.Amount)
	require.EqualValues(t, 60, res.Transaction.BalanceAfter)
	require.Equal(t, Spent, res.Transaction.Type)

	var w wallet.Wallet
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&w).Error)
	require.EqualValues(t, 60, w.RefcoinBalance)
	require.EqualValues(t, 100, w.TotalEarnedRefcoins)
	require.EqualValues(t, 40, w.TotalSpentRefcoins)
	require.Equal(t, w.RefcoinBalance, w.TotalEarnedRefcoins-w.TotalSpentRefcoins)
}

func TestSpendCoinsInsufficientBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 30, Source: "achievement",
	})
	require.NoError(t, err)

	_, err = svc.SpendCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 31, Source: "reward_purchase",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	// Failed spend leaves no trace: balance intact, no ledger row written.
	var w wallet.Wallet
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&w).Error)
	require.EqualValues(t, 30, w.RefcoinBalance)
	require.EqualValues(t, 0, w.TotalSpentRefcoins)

	var count int64
	require.NoError(t, db.Model(&Transaction{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCurrenciesAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 500, Source: "achievement",
	})
	require.NoError(t, err)

	// A refcoin balance never covers a premium-token spend.
	_, err = svc.SpendCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.PremiumToken, Amount: 1, Source: "reward_purchase",
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.PremiumToken, Amount: 3, Source: "achievement",
	})
	require.NoError(t, err)

	res, err := svc.SpendCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.PremiumToken, Amount: 1, Source: "reward_purchase",
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, res.Balance)
}

func TestBalanceAfterChain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	amounts := []int64{50, 25, 125}
	for _, a := range amounts {
		_, err := svc.AddCoins(ctx, MutationParams{
			UserID: "user-1", Currency: wallet.Refcoin, Amount: a, Source: "achievement",
		})
		require.NoError(t, err)
	}
	_, err := svc.SpendCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 70, Source: "reward_purchase",
	})
	require.NoError(t, err)

	txns, err := svc.GetTransactionHistory(ctx, "user-1", 50, 0)
	require.NoError(t, err)
	require.Len(t, txns, 4)

	// Replaying signed amounts oldest-first must reproduce each balance_after.
	var running int64
	for i := len(txns) - 1; i >= 0; i-- {
		running += txns[i].Amount
		require.Equal(t, running, txns[i].BalanceAfter)
	}
	require.EqualValues(t, 130, running)
}

func TestSpendCoinsTxRollsBackWithCaller(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 100, Source: "achievement",
	})
	require.NoError(t, err)

	sentinel := errors.New("caller failed after debit")
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.SpendCoinsTx(ctx, tx, MutationParams{
			UserID: "user-1", Currency: wallet.Refcoin, Amount: 80, Source: "reward_purchase",
		}); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	var w wallet.Wallet
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&w).Error)
	require.EqualValues(t, 100, w.RefcoinBalance)
}

func TestGetWalletInfo(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.Refcoin, Amount: 250, Source: "achievement",
	})
	require.NoError(t, err)
	_, err = svc.AddCoins(ctx, MutationParams{
		UserID: "user-1", Currency: wallet.PremiumToken, Amount: 2, Source: "achievement",
	})
	require.NoError(t, err)

	info, err := svc.GetWalletInfo(ctx, "user-1")
	require.NoError(t, err)
	require.EqualValues(t, 250, info.RefcoinBalance)
	require.EqualValues(t, 2, info.PremiumTokenBalance)
	require.EqualValues(t, 250*1+2*100, info.EstimatedValueCents)
}

func TestGetWalletInfoLazyCreate(t *testing.T) {
	svc, _ := newTestService(t)

	info, err := svc.GetWalletInfo(context.Background(), "brand-new-user")
	require.NoError(t, err)
	require.EqualValues(t, 0, info.RefcoinBalance)
	require.EqualValues(t, 0, info.PremiumTokenBalance)
	require.EqualValues(t, 0, info.EstimatedValueCents)
}

func TestGetTransactionHistoryPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AddCoins(ctx, MutationParams{
			UserID: "user-1", Currency: wallet.Refcoin, Amount: int64(i + 1), Source: "achievement",
		})
		require.NoError(t, err)
	}

	page, err := svc.GetTransactionHistory(ctx, "user-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)

	rest, err := svc.GetTransactionHistory(ctx, "user-1", 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 3)
}
