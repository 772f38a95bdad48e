package ledger

import (
	"time"

	"gorm.io/datatypes"

	"refhire-rewards/services/wallet"
)

type TransactionType string

var (
	Earned    TransactionType = "earned"
	Spent     TransactionType = "spent"
	Purchased TransactionType = "purchased"
	Gifted    TransactionType = "gifted"
	Bonus     TransactionType = "bonus"
	Refund    TransactionType = "refund"
)

func (t TransactionType) String() string {
	switch t {
	case Earned, Spent, Purchased, Gifted, Bonus, Refund:
		return string(t)
	default:
		return ""
	}
}

type TransactionStatus string

var (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Transaction is the immutable ledger row written for every balance
// mutation. Amount is signed (+earn, -spend); BalanceAfter is the wallet's
// balance in that currency immediately after the mutation, so the rows for
// one wallet form a chain auditable without the wallet table.
type Transaction struct {
	ID               string            `gorm:"column:id;primaryKey"`
	WalletID         string            `gorm:"column:wallet_id;index;not null"`
	UserID           string            `gorm:"column:user_id;index;not null"`
	Type             TransactionType   `gorm:"column:type;type:varchar(20);not null"`
	Currency         wallet.Currency   `gorm:"column:currency;type:varchar(20);not null"`
	Amount           int64             `gorm:"column:amount;not null"`
	BalanceAfter     int64             `gorm:"column:balance_after;not null"`
	Status           TransactionStatus `gorm:"column:status;type:varchar(20);default:'completed'"`
	Source           string            `gorm:"column:source;index;not null"`
	SourceID         string            `gorm:"column:source_id;index"`
	Description      string            `gorm:"column:description;type:text"`
	Metadata         datatypes.JSON    `gorm:"column:metadata"`
	PaymentReference string            `gorm:"column:payment_reference"`
	CreatedAt        time.Time         `gorm:"column:created_at;index;autoCreateTime"`
}

func (Transaction) TableName() string { return "transactions" }

// WalletInfo is the read model returned to the presentation layer.
type WalletInfo struct {
	UserID                   string `json:"user_id"`
	RefcoinBalance           int64  `json:"refcoin_balance"`
	PremiumTokenBalance      int64  `json:"premium_token_balance"`
	TotalEarnedRefcoins      int64  `json:"total_earned_refcoins"`
	TotalSpentRefcoins       int64  `json:"total_spent_refcoins"`
	TotalEarnedPremiumTokens int64  `json:"total_earned_premium_tokens"`
	TotalSpentPremiumTokens  int64  `json:"total_spent_premium_tokens"`
	EstimatedValueCents      int64  `json:"estimated_value_cents"`
}
