package reward

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"refhire-rewards/pkg/config"
	"refhire-rewards/services/ledger"
	"refhire-rewards/services/testutil"
	"refhire-rewards/services/wallet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *ledger.Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&wallet.Wallet{}, &ledger.Transaction{},
		&RewardItem{}, &RewardPurchase{}, &CoinPack{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	walletStore := wallet.NewStore(wallet.StoreParams{DB: db, Node: node})
	ledgerSvc := ledger.NewService(ledger.ServiceParams{
		DB: db, Node: node, Config: cfg, Wallets: walletStore,
	})
	svc := NewService(ServiceParams{DB: db, Node: node, Ledger: ledgerSvc})
	return svc, ledgerSvc, db
}

func fund(t *testing.T, svc *ledger.Service, userID string, refcoins, tokens int64) {
	t.Helper()
	ctx := context.Background()
	if refcoins > 0 {
		_, err := svc.AddCoins(ctx, ledger.MutationParams{
			UserID: userID, Currency: wallet.Refcoin, Amount: refcoins, Source: "achievement",
		})
		require.NoError(t, err)
	}
	if tokens > 0 {
		_, err := svc.AddCoins(ctx, ledger.MutationParams{
			UserID: userID, Currency: wallet.PremiumToken, Amount: tokens, Source: "achievement",
		})
		require.NoError(t, err)
	}
}

func getWallet(t *testing.T, db *gorm.DB, userID string) wallet.Wallet {
	t.Helper()
	var w wallet.Wallet
	require.NoError(t, db.Where("user_id = ?", userID).First(&w).Error)
	return w
}

func TestPurchaseReward(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 500, 0)

	stock := int64(3)
	item := &RewardItem{
		ID: "item-1", Name: "Coffee Voucher", Category: "perks",
		CostRefcoins: 200, StockQuantity: &stock, IsAvailable: true,
		FulfillmentMethod: FulfillEmail,
	}
	require.NoError(t, db.Create(item).Error)

	p, err := svc.PurchaseReward(ctx, "user-1", "item-1")
	require.NoError(t, err)
	require.Equal(t, PurchasePending, p.Status)
	require.EqualValues(t, 200, p.CostRefcoins)
	require.NotEmpty(t, p.RefcoinTransactionID)
	require.Empty(t, p.PremiumTransactionID)
	require.Equal(t, FulfillEmail, p.FulfillmentMethod)

	w := getWallet(t, db, "user-1")
	require.EqualValues(t, 300, w.RefcoinBalance)

	// The ledger row names the item it paid for.
	var txn ledger.Transaction
	require.NoError(t, db.First(&txn, "id = ?", p.RefcoinTransactionID).Error)
	require.Equal(t, "reward_purchase", txn.Source)
	require.Equal(t, "item-1", txn.SourceID)

	var fresh RewardItem
	require.NoError(t, db.First(&fresh, "id = ?", "item-1").Error)
	require.EqualValues(t, 2, *fresh.StockQuantity)
}

func TestPurchaseRewardDualCurrencyAtomic(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	// Enough refcoins, zero premium tokens: nothing may be charged.
	fund(t, ledgerSvc, "user-1", 1000, 0)

	require.NoError(t, db.Create(&RewardItem{
		ID: "item-1", Name: "Premium Feature", CostRefcoins: 100,
		CostPremiumTokens: 1, IsAvailable: true,
	}).Error)

	_, err := svc.PurchaseReward(ctx, "user-1", "item-1")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	w := getWallet(t, db, "user-1")
	require.EqualValues(t, 1000, w.RefcoinBalance)
	require.EqualValues(t, 0, w.TotalSpentRefcoins)

	var purchases int64
	require.NoError(t, db.Model(&RewardPurchase{}).Count(&purchases).Error)
	require.EqualValues(t, 0, purchases)

	var spends int64
	require.NoError(t, db.Model(&ledger.Transaction{}).
		Where("source = ?", "reward_purchase").Count(&spends).Error)
	require.EqualValues(t, 0, spends)
}

func TestPurchaseRewardAvailability(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 1000, 0)

	_, err := svc.PurchaseReward(ctx, "user-1", "missing")
	require.ErrorIs(t, err, ErrRewardItemNotFound)

	require.NoError(t, db.Create(&RewardItem{
		ID: "inactive", Name: "Retired", CostRefcoins: 10, IsAvailable: false,
	}).Error)
	_, err = svc.PurchaseReward(ctx, "user-1", "inactive")
	require.ErrorIs(t, err, ErrRewardNotAvailable)

	empty := int64(0)
	require.NoError(t, db.Create(&RewardItem{
		ID: "soldout", Name: "Sold Out", CostRefcoins: 10,
		StockQuantity: &empty, IsAvailable: true,
	}).Error)
	_, err = svc.PurchaseReward(ctx, "user-1", "soldout")
	require.ErrorIs(t, err, ErrRewardNotAvailable)
}

func TestPurchaseRewardPerUserLimit(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 1000, 0)
	fund(t, ledgerSvc, "user-2", 1000, 0)

	require.NoError(t, db.Create(&RewardItem{
		ID: "limited", Name: "One Each", CostRefcoins: 10,
		PerUserLimit: 1, IsAvailable: true,
	}).Error)

	_, err := svc.PurchaseReward(ctx, "user-1", "limited")
	require.NoError(t, err)

	_, err = svc.PurchaseReward(ctx, "user-1", "limited")
	require.ErrorIs(t, err, ErrPurchaseLimitReached)
	require.ErrorIs(t, err, ErrRewardNotAvailable)

	// The limit is per user, not global.
	_, err = svc.PurchaseReward(ctx, "user-2", "limited")
	require.NoError(t, err)
}

func TestCancelledPurchasesDoNotCountTowardLimit(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 1000, 0)

	require.NoError(t, db.Create(&RewardItem{
		ID: "limited", Name: "One Each", CostRefcoins: 10,
		PerUserLimit: 1, IsAvailable: true,
	}).Error)

	p, err := svc.PurchaseReward(ctx, "user-1", "limited")
	require.NoError(t, err)

	_, err = svc.UpdatePurchaseStatus(ctx, p.ID, PurchaseCancelled, nil)
	require.NoError(t, err)

	_, err = svc.PurchaseReward(ctx, "user-1", "limited")
	require.NoError(t, err)
}

func TestUpdatePurchaseStatus(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 100, 0)
	require.NoError(t, db.Create(&RewardItem{
		ID: "item-1", Name: "Sticker", CostRefcoins: 10, IsAvailable: true,
	}).Error)

	p, err := svc.PurchaseReward(ctx, "user-1", "item-1")
	require.NoError(t, err)

	updated, err := svc.UpdatePurchaseStatus(ctx, p.ID, PurchaseFulfilled,
		map[string]any{"tracking_code": "XYZ"})
	require.NoError(t, err)
	require.Equal(t, PurchaseFulfilled, updated.Status)
	require.Contains(t, string(updated.Fulfillment), "XYZ")

	// Finalized purchases stay finalized.
	_, err = svc.UpdatePurchaseStatus(ctx, p.ID, PurchaseCancelled, nil)
	require.ErrorIs(t, err, ErrPurchaseNotPending)

	_, err = svc.UpdatePurchaseStatus(ctx, "missing", PurchaseFulfilled, nil)
	require.ErrorIs(t, err, ErrPurchaseNotFound)

	_, err = svc.UpdatePurchaseStatus(ctx, p.ID, PurchasePending, nil)
	require.Error(t, err)
}

func TestCreditCoinPack(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&CoinPack{
		ID: "pack-1", Name: "Starter Pack", PriceCents: 499,
		Refcoins: 500, BonusRefcoins: 50, PremiumTokens: 1, IsActive: true,
	}).Error)

	result, err := svc.CreditCoinPack(ctx, "user-1", "pack-1", "ch_123")
	require.NoError(t, err)
	require.EqualValues(t, 550, result.Balance)
	require.Equal(t, ledger.Purchased, result.Transaction.Type)
	require.Equal(t, "ch_123", result.Transaction.PaymentReference)

	w := getWallet(t, db, "user-1")
	require.EqualValues(t, 550, w.RefcoinBalance)
	require.EqualValues(t, 1, w.PremiumTokenBalance)
}

func TestCreditCoinPackInactive(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&CoinPack{
		ID: "pack-1", Name: "Retired Pack", PriceCents: 499, Refcoins: 500, IsActive: false,
	}).Error)

	_, err := svc.CreditCoinPack(ctx, "user-1", "pack-1", "ch_123")
	require.ErrorIs(t, err, ErrCoinPackNotFound)

	_, err = svc.CreditCoinPack(ctx, "user-1", "missing", "ch_123")
	require.ErrorIs(t, err, ErrCoinPackNotFound)
}

func TestListCatalogs(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&RewardItem{ID: "a", Name: "A", Category: "perks", IsAvailable: true}).Error)
	require.NoError(t, db.Create(&RewardItem{ID: "b", Name: "B", Category: "swag", IsAvailable: true}).Error)
	require.NoError(t, db.Create(&RewardItem{ID: "c", Name: "C", Category: "perks", IsAvailable: false}).Error)
	require.NoError(t, db.Create(&CoinPack{ID: "p", Name: "P", PriceCents: 100, Refcoins: 10, IsActive: true}).Error)

	all, err := svc.ListRewardItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	perks, err := svc.ListRewardItems(ctx, "perks")
	require.NoError(t, err)
	require.Len(t, perks, 1)
	require.Equal(t, "a", perks[0].ID)

	packs, err := svc.ListCoinPacks(ctx)
	require.NoError(t, err)
	require.Len(t, packs, 1)
}

func TestGetUserPurchases(t *testing.T) {
	svc, ledgerSvc, db := newTestService(t)
	ctx := context.Background()

	fund(t, ledgerSvc, "user-1", 100, 0)
	require.NoError(t, db.Create(&RewardItem{
		ID: "item-1", Name: "Sticker", CostRefcoins: 10, IsAvailable: true,
	}).Error)

	for i := 0; i < 3; i++ {
		_, err := svc.PurchaseReward(ctx, "user-1", "item-1")
		require.NoError(t, err)
	}

	purchases, err := svc.GetUserPurchases(ctx, "user-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, purchases, 2)

	rest, err := svc.GetUserPurchases(ctx, "user-1", 10, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
}
