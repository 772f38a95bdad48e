package reward

import (
	"time"

	"gorm.io/datatypes"
)

type FulfillmentMethod string

var (
	FulfillManual FulfillmentMethod = "manual"
	FulfillAPI    FulfillmentMethod = "api"
	FulfillEmail  FulfillmentMethod = "email"
)

type PurchaseStatus string

var (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseFulfilled PurchaseStatus = "fulfilled"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseCancelled PurchaseStatus = "cancelled"
)

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePending, PurchaseFulfilled, PurchaseFailed, PurchaseCancelled:
		return true
	}
	return false
}

// RewardItem is a catalog entry. Either cost may be zero, meaning that
// currency is not required; a nil StockQuantity means unlimited stock.
type RewardItem struct {
	ID                string            `gorm:"column:id;primaryKey"`
	Name              string            `gorm:"column:name;not null"`
	Description       string            `gorm:"column:description;type:text"`
	Category          string            `gorm:"column:category;index"`
	CostRefcoins      int64             `gorm:"column:cost_refcoins;not null;default:0"`
	CostPremiumTokens int64             `gorm:"column:cost_premium_tokens;not null;default:0"`
	StockQuantity     *int64            `gorm:"column:stock_quantity"`
	PerUserLimit      int64             `gorm:"column:per_user_limit;not null;default:0"`
	IsAvailable       bool              `gorm:"column:is_available;not null;default:true"`
	FulfillmentMethod FulfillmentMethod `gorm:"column:fulfillment_method;type:varchar(20);default:'manual'"`
	ImageURL          string            `gorm:"column:image_url"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardItem) TableName() string { return "reward_items" }

// RewardPurchase records one redemption with the costs actually charged
// and the ledger transactions that charged them.
type RewardPurchase struct {
	ID                   string            `gorm:"column:id;primaryKey"`
	UserID               string            `gorm:"column:user_id;index;not null"`
	RewardItemID         string            `gorm:"column:reward_item_id;index;not null"`
	CostRefcoins         int64             `gorm:"column:cost_refcoins;not null;default:0"`
	CostPremiumTokens    int64             `gorm:"column:cost_premium_tokens;not null;default:0"`
	RefcoinTransactionID string            `gorm:"column:refcoin_transaction_id"`
	PremiumTransactionID string            `gorm:"column:premium_transaction_id"`
	Status               PurchaseStatus    `gorm:"column:status;type:varchar(20);index;default:'pending'"`
	FulfillmentMethod    FulfillmentMethod `gorm:"column:fulfillment_method;type:varchar(20)"`
	Fulfillment          datatypes.JSON    `gorm:"column:fulfillment"`
	CreatedAt            time.Time         `gorm:"column:created_at;index;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (RewardPurchase) TableName() string { return "reward_purchases" }

// CoinPack is a purchasable bundle of coins; crediting happens when the
// payment gateway confirms the charge.
type CoinPack struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	Refcoins      int64     `gorm:"column:refcoins;not null;default:0"`
	BonusRefcoins int64     `gorm:"column:bonus_refcoins;not null;default:0"`
	PremiumTokens int64     `gorm:"column:premium_tokens;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	IsFeatured    bool      `gorm:"column:is_featured;not null;default:false"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CoinPack) TableName() string { return "coin_packs" }
