package wallet

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"refhire-rewards/pkg/db/option"
	"refhire-rewards/pkg/errutil"
	"refhire-rewards/pkg/repository"
)

// Store owns wallet rows. Balance mutations live in the ledger service;
// everything else goes through here.
type Store struct {
	db   *gorm.DB
	node *snowflake.Node

	wallets repository.Repository[Wallet]
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		node: p.Node,

		wallets: repository.ProvideStore[Wallet](p.DB),
	}
}

// GetOrCreate returns the user's wallet, creating a zeroed one on first
// access. The insert ignores conflicts on user_id and the row is re-read,
// so two concurrent first accesses converge on the same single row instead
// of racing a check-then-insert.
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*Wallet, error) {
	return s.getOrCreate(ctx, s.db, userID, false)
}

// GetOrCreateTx is GetOrCreate inside a caller-owned transaction. With
// lock=true the returned row is held FOR UPDATE until the transaction
// ends, serializing concurrent mutators of the same wallet.
func (s *Store) GetOrCreateTx(ctx context.Context, tx *gorm.DB, userID string, lock bool) (*Wallet, error) {
	return s.getOrCreate(ctx, tx, userID, lock)
}

func (s *Store) getOrCreate(ctx context.Context, tx *gorm.DB, userID string, lock bool) (*Wallet, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user_id is required", nil)
	}

	row := &Wallet{
		ID:     s.node.Generate().String(),
		UserID: userID,
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}

	opts := []option.QueryOption{}
	if lock {
		opts = append(opts, option.WithLockingUpdate())
	}

	w, err := s.wallets.WithTrx(tx).FindOne(ctx, &Wallet{UserID: userID}, opts...)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, errutil.Internal("wallet missing after upsert", nil)
	}

	return w, nil
}
