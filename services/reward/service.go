package reward

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"refhire-rewards/pkg/db/option"
	"refhire-rewards/pkg/errutil"
	"refhire-rewards/pkg/repository"
	"refhire-rewards/services/ledger"
	"refhire-rewards/services/wallet"
)

var (
	ErrRewardItemNotFound = errutil.New(errutil.StatusNotFound, "reward item not found")
	ErrRewardNotAvailable = errutil.New(errutil.StatusUnprocessableEntity, "reward not available")
	// ErrPurchaseLimitReached wraps ErrRewardNotAvailable, so callers that
	// only branch on availability still match it with errors.Is.
	ErrPurchaseLimitReached = errutil.New(errutil.StatusUnprocessableEntity, "purchase limit reached",
		errutil.WithErr(ErrRewardNotAvailable))
	ErrCoinPackNotFound   = errutil.New(errutil.StatusNotFound, "coin pack not found")
	ErrPurchaseNotFound   = errutil.New(errutil.StatusNotFound, "purchase not found")
	ErrPurchaseNotPending = errutil.New(errutil.StatusConflict, "purchase already finalized")
)

// Service handles catalog redemptions and coin-pack crediting. All money
// movement goes through the ledger; this service owns the item, purchase
// and pack rows around it.
type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	ledger *ledger.Service

	items     repository.Repository[RewardItem]
	purchases repository.Repository[RewardPurchase]
	packs     repository.Repository[CoinPack]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		ledger: p.Ledger,

		items:     repository.ProvideStore[RewardItem](p.DB),
		purchases: repository.ProvideStore[RewardPurchase](p.DB),
		packs:     repository.ProvideStore[CoinPack](p.DB),
	}
}

// PurchaseReward redeems one unit of a catalog item. The whole flow runs
// in a single database transaction: item lock, availability and limit
// checks, one debit per required currency, stock decrement, purchase row.
// Any failure rolls everything back, so a two-currency item is never
// charged in only one currency.
func (s *Service) PurchaseReward(ctx context.Context, userID, itemID string) (*RewardPurchase, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if itemID == "" {
		return nil, errutil.BadRequest("item_id is required", nil)
	}

	var purchase *RewardPurchase
	err := s.db.Transaction(func(tx *gorm.DB) error {
		item, err := s.items.WithTrx(tx).FindOne(ctx, &RewardItem{ID: itemID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if item == nil {
			return ErrRewardItemNotFound
		}
		if !item.IsAvailable {
			return ErrRewardNotAvailable
		}
		if item.StockQuantity != nil && *item.StockQuantity <= 0 {
			return ErrRewardNotAvailable
		}

		if item.PerUserLimit > 0 {
			var prior int64
			if err := tx.WithContext(ctx).Model(&RewardPurchase{}).
				Where("user_id = ? AND reward_item_id = ? AND status IN ?",
					userID, itemID, []PurchaseStatus{PurchasePending, PurchaseFulfilled}).
				Count(&prior).Error; err != nil {
				return err
			}
			if prior >= item.PerUserLimit {
				return ErrPurchaseLimitReached
			}
		}

		purchase = &RewardPurchase{
			ID:                s.node.Generate().String(),
			UserID:            userID,
			RewardItemID:      item.ID,
			CostRefcoins:      item.CostRefcoins,
			CostPremiumTokens: item.CostPremiumTokens,
			Status:            PurchasePending,
			FulfillmentMethod: item.FulfillmentMethod,
		}

		if item.CostRefcoins > 0 {
			res, err := s.ledger.SpendCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:      userID,
				Currency:    wallet.Refcoin,
				Amount:      item.CostRefcoins,
				Source:      "reward_purchase",
				SourceID:    item.ID,
				Description: item.Name,
			})
			if err != nil {
				return err
			}
			purchase.RefcoinTransactionID = res.Transaction.ID
		}
		if item.CostPremiumTokens > 0 {
			res, err := s.ledger.SpendCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:      userID,
				Currency:    wallet.PremiumToken,
				Amount:      item.CostPremiumTokens,
				Source:      "reward_purchase",
				SourceID:    item.ID,
				Description: item.Name,
			})
			if err != nil {
				return err
			}
			purchase.PremiumTransactionID = res.Transaction.ID
		}

		if item.StockQuantity != nil {
			res := tx.WithContext(ctx).Model(&RewardItem{}).
				Where("id = ? AND stock_quantity > 0", item.ID).
				Update("stock_quantity", gorm.Expr("stock_quantity - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrRewardNotAvailable
			}
		}

		return s.purchases.WithTrx(tx).Create(ctx, purchase)
	})
	if err != nil {
		return nil, err
	}

	span := trace.SpanFromContext(ctx)
	zap.L().Info("reward purchased",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
		zap.String("item_id", itemID),
		zap.Int64("cost_refcoins", purchase.CostRefcoins),
		zap.Int64("cost_premium_tokens", purchase.CostPremiumTokens))

	return purchase, nil
}

// CreditCoinPack credits the coins of a purchased pack. Called from the
// payment-gateway webhook after the charge settles; paymentRef links the
// ledger rows back to the charge.
func (s *Service) CreditCoinPack(ctx context.Context, userID, packID, paymentRef string) (*ledger.MutationResult, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	pack, err := s.packs.FindOne(ctx, &CoinPack{ID: packID})
	if err != nil {
		return nil, err
	}
	if pack == nil || !pack.IsActive {
		return nil, ErrCoinPackNotFound
	}

	var result *ledger.MutationResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if total := pack.Refcoins + pack.BonusRefcoins; total > 0 {
			var err error
			result, err = s.ledger.AddCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:           userID,
				Currency:         wallet.Refcoin,
				Amount:           total,
				Type:             ledger.Purchased,
				Source:           "coin_pack",
				SourceID:         pack.ID,
				Description:      pack.Name,
				Metadata:         map[string]any{"bonus_refcoins": pack.BonusRefcoins},
				PaymentReference: paymentRef,
			})
			if err != nil {
				return err
			}
		}
		if pack.PremiumTokens > 0 {
			res, err := s.ledger.AddCoinsTx(ctx, tx, ledger.MutationParams{
				UserID:           userID,
				Currency:         wallet.PremiumToken,
				Amount:           pack.PremiumTokens,
				Type:             ledger.Purchased,
				Source:           "coin_pack",
				SourceID:         pack.ID,
				Description:      pack.Name,
				PaymentReference: paymentRef,
			})
			if err != nil {
				return err
			}
			if result == nil {
				result = res
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errutil.UnprocessableEntity("coin pack grants nothing", nil)
	}

	zap.L().Info("coin pack credited",
		zap.String("user_id", userID),
		zap.String("pack_id", packID),
		zap.String("payment_reference", paymentRef))

	return result, nil
}

// UpdatePurchaseStatus transitions a pending purchase to its final state.
// The status guard in the UPDATE keeps fulfillment collaborators from
// finalizing the same purchase twice.
func (s *Service) UpdatePurchaseStatus(ctx context.Context, purchaseID string, status PurchaseStatus, fulfillment map[string]any) (*RewardPurchase, error) {
	if !status.Valid() || status == PurchasePending {
		return nil, errutil.BadRequest("invalid target status", nil)
	}

	p, err := s.purchases.FindOne(ctx, &RewardPurchase{ID: purchaseID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}

	updates := map[string]any{"status": status}
	if fulfillment != nil {
		b, err := json.Marshal(fulfillment)
		if err != nil {
			return nil, errutil.BadRequest("invalid fulfillment payload", err)
		}
		updates["fulfillment"] = datatypes.JSON(b)
	}

	res := s.db.WithContext(ctx).Model(&RewardPurchase{}).
		Where("id = ? AND status = ?", purchaseID, PurchasePending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrPurchaseNotPending
	}

	return s.purchases.FindOne(ctx, &RewardPurchase{ID: purchaseID})
}

// ListRewardItems returns the available catalog, optionally filtered by
// category.
func (s *Service) ListRewardItems(ctx context.Context, category string) ([]*RewardItem, error) {
	query := &RewardItem{IsAvailable: true}
	if category != "" {
		query.Category = category
	}
	return s.items.Find(ctx, query)
}

func (s *Service) ListCoinPacks(ctx context.Context) ([]*CoinPack, error) {
	return s.packs.Find(ctx, &CoinPack{IsActive: true})
}

// GetUserPurchases lists the user's redemptions newest-first.
func (s *Service) GetUserPurchases(ctx context.Context, userID string, limit, offset int) ([]*RewardPurchase, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.purchases.Find(ctx, &RewardPurchase{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}
