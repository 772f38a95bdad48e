package wallet

import (
	"time"
)

// Currency enumerates the two virtual currencies. Refcoin is the common
// reward unit, the premium token the scarcer one.
type Currency string

var (
	Refcoin      Currency = "refcoin"
	PremiumToken Currency = "premium_token"
)

func (c Currency) String() string {
	switch c {
	case Refcoin, PremiumToken:
		return string(c)
	default:
		return ""
	}
}

func (c Currency) Valid() bool {
	return c == Refcoin || c == PremiumToken
}

// Wallet is the per-user balance record. One row per user, enforced by the
// unique index on user_id; created lazily, never deleted. The invariant
// balance == total_earned - total_spent holds for each currency at all
// times and is what lets the ledger be reconciled against this table.
type Wallet struct {
	ID                       string    `gorm:"column:id;primaryKey"`
	UserID                   string    `gorm:"column:user_id;uniqueIndex;not null"`
	RefcoinBalance           int64     `gorm:"column:refcoin_balance;not null;default:0"`
	PremiumTokenBalance      int64     `gorm:"column:premium_token_balance;not null;default:0"`
	TotalEarnedRefcoins      int64     `gorm:"column:total_earned_refcoins;not null;default:0"`
	TotalSpentRefcoins       int64     `gorm:"column:total_spent_refcoins;not null;default:0"`
	TotalEarnedPremiumTokens int64     `gorm:"column:total_earned_premium_tokens;not null;default:0"`
	TotalSpentPremiumTokens  int64     `gorm:"column:total_spent_premium_tokens;not null;default:0"`
	CreatedAt                time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) Balance(c Currency) int64 {
	if c == PremiumToken {
		return w.PremiumTokenBalance
	}
	return w.RefcoinBalance
}

func (w *Wallet) TotalEarned(c Currency) int64 {
	if c == PremiumToken {
		return w.TotalEarnedPremiumTokens
	}
	return w.TotalEarnedRefcoins
}

func (w *Wallet) TotalSpent(c Currency) int64 {
	if c == PremiumToken {
		return w.TotalSpentPremiumTokens
	}
	return w.TotalSpentRefcoins
}

// Column helpers keep the per-currency UPDATE statements in the ledger
// service free of string literals scattered per call site.

func BalanceColumn(c Currency) string {
	if c == PremiumToken {
		return "premium_token_balance"
	}
	return "refcoin_balance"
}

func EarnedColumn(c Currency) string {
	if c == PremiumToken {
		return "total_earned_premium_tokens"
	}
	return "total_earned_refcoins"
}

func SpentColumn(c Currency) string {
	if c == PremiumToken {
		return "total_spent_premium_tokens"
	}
	return "total_spent_refcoins"
}
