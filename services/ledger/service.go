package ledger

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"refhire-rewards/pkg/config"
	"refhire-rewards/pkg/db/option"
	"refhire-rewards/pkg/errutil"
	"refhire-rewards/pkg/repository"
	"refhire-rewards/services/wallet"
)

// ErrInsufficientBalance is returned when a spend exceeds the current
// balance in that currency. The wallet, counters and ledger stay untouched.
var ErrInsufficientBalance = errutil.New(errutil.StatusUnprocessableEntity, "insufficient balance")

// Service is the only component allowed to mutate wallet balances. Every
// mutation appends exactly one Transaction inside the same database
// transaction as the balance update.
type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	cfg     *config.Config
	wallets *wallet.Store

	txns repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Config  *config.Config
	Wallets *wallet.Store
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		cfg:     p.Config,
		wallets: p.Wallets,

		txns: repository.ProvideStore[Transaction](p.DB),
	}
}

// MutationParams describes one earn or spend against a single currency.
type MutationParams struct {
	UserID           string
	Currency         wallet.Currency
	Amount           int64
	Type             TransactionType
	Source           string
	SourceID         string
	Description      string
	Metadata         map[string]any
	PaymentReference string
}

type MutationResult struct {
	Balance     int64
	Transaction *Transaction
}

func (p *MutationParams) validate() error {
	if p.UserID == "" {
		return errutil.BadRequest("user_id is required", nil)
	}
	if !p.Currency.Valid() {
		return errutil.BadRequest("unsupported currency", nil)
	}
	if p.Amount <= 0 {
		return errutil.BadRequest("amount must be > 0", nil)
	}
	if p.Source == "" {
		return errutil.BadRequest("source is required", nil)
	}
	return nil
}

// AddCoins credits the wallet and appends an earned transaction. The only
// failure mode is storage failure, in which case nothing is written.
func (s *Service) AddCoins(ctx context.Context, p MutationParams) (*MutationResult, error) {
	var result *MutationResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.AddCoinsTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddCoinsTx is AddCoins inside a caller-owned transaction, so callers
// composing multiple mutations (achievement payouts, redemptions) keep
// them atomic.
func (s *Service) AddCoinsTx(ctx context.Context, tx *gorm.DB, p MutationParams) (*MutationResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Type == "" {
		p.Type = Earned
	}

	w, err := s.wallets.GetOrCreateTx(ctx, tx, p.UserID, true)
	if err != nil {
		return nil, err
	}

	balCol := wallet.BalanceColumn(p.Currency)
	if err := tx.WithContext(ctx).Model(&wallet.Wallet{}).
		Where("id = ?", w.ID).
		Updates(map[string]any{
			balCol:                          gorm.Expr(balCol+" + ?", p.Amount),
			wallet.EarnedColumn(p.Currency): gorm.Expr(wallet.EarnedColumn(p.Currency)+" + ?", p.Amount),
		}).Error; err != nil {
		return nil, err
	}

	// w is locked FOR UPDATE, so the pre-read balance is stable.
	newBalance := w.Balance(p.Currency) + p.Amount

	entry, err := s.appendTransaction(ctx, tx, w, p, p.Amount, newBalance)
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "coins added", p, newBalance)

	return &MutationResult{Balance: newBalance, Transaction: entry}, nil
}

// SpendCoins debits the wallet and appends a spent transaction, or fails
// with ErrInsufficientBalance leaving no trace.
func (s *Service) SpendCoins(ctx context.Context, p MutationParams) (*MutationResult, error) {
	var result *MutationResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.SpendCoinsTx(ctx, tx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) SpendCoinsTx(ctx context.Context, tx *gorm.DB, p MutationParams) (*MutationResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Type == "" {
		p.Type = Spent
	}

	w, err := s.wallets.GetOrCreateTx(ctx, tx, p.UserID, true)
	if err != nil {
		return nil, err
	}

	// Conditional decrement: the balance guard in the WHERE clause makes
	// the read-check-write atomic even without the row lock above, and the
	// affected-row check is the authoritative insufficient-funds signal.
	balCol := wallet.BalanceColumn(p.Currency)
	res := tx.WithContext(ctx).Model(&wallet.Wallet{}).
		Where("id = ? AND "+balCol+" >= ?", w.ID, p.Amount).
		Updates(map[string]any{
			balCol:                         gorm.Expr(balCol+" - ?", p.Amount),
			wallet.SpentColumn(p.Currency): gorm.Expr(wallet.SpentColumn(p.Currency)+" + ?", p.Amount),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientBalance
	}

	newBalance := w.Balance(p.Currency) - p.Amount

	entry, err := s.appendTransaction(ctx, tx, w, p, -p.Amount, newBalance)
	if err != nil {
		return nil, err
	}

	s.logMutation(ctx, "coins spent", p, newBalance)

	return &MutationResult{Balance: newBalance, Transaction: entry}, nil
}

func (s *Service) appendTransaction(ctx context.Context, tx *gorm.DB, w *wallet.Wallet, p MutationParams, signedAmount, balanceAfter int64) (*Transaction, error) {
	var meta datatypes.JSON
	if p.Metadata != nil {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.BadRequest("invalid metadata", err)
		}
		meta = datatypes.JSON(b)
	}

	entry := &Transaction{
		ID:               s.node.Generate().String(),
		WalletID:         w.ID,
		UserID:           p.UserID,
		Type:             p.Type,
		Currency:         p.Currency,
		Amount:           signedAmount,
		BalanceAfter:     balanceAfter,
		Status:           StatusCompleted,
		Source:           p.Source,
		SourceID:         p.SourceID,
		Description:      p.Description,
		Metadata:         meta,
		PaymentReference: p.PaymentReference,
	}

	if err := s.txns.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

func (s *Service) logMutation(ctx context.Context, msg string, p MutationParams, balance int64) {
	span := trace.SpanFromContext(ctx)

	zap.L().Info(msg,
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", p.UserID),
		zap.String("currency", p.Currency.String()),
		zap.Int64("amount", p.Amount),
		zap.Int64("balance", balance),
		zap.String("source", p.Source),
	)
}

// GetWalletInfo returns balances, lifetime totals and the configured
// estimated real-world value of the holdings.
func (s *Service) GetWalletInfo(ctx context.Context, userID string) (*WalletInfo, error) {
	w, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &WalletInfo{
		UserID:                   w.UserID,
		RefcoinBalance:           w.RefcoinBalance,
		PremiumTokenBalance:      w.PremiumTokenBalance,
		TotalEarnedRefcoins:      w.TotalEarnedRefcoins,
		TotalSpentRefcoins:       w.TotalSpentRefcoins,
		TotalEarnedPremiumTokens: w.TotalEarnedPremiumTokens,
		TotalSpentPremiumTokens:  w.TotalSpentPremiumTokens,
		EstimatedValueCents: w.RefcoinBalance*s.cfg.Rewards.RefcoinValueCents +
			w.PremiumTokenBalance*s.cfg.Rewards.PremiumTokenValueCents,
	}, nil
}

// GetTransactionHistory lists a user's ledger entries newest-first.
func (s *Service) GetTransactionHistory(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}
	if limit <= 0 || limit > 250 {
		limit = 50
	}

	return s.txns.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}
