package repository

import (
	"context"

	"github.com/smallbiznis/coinflow/internal/store/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	return db.WithContext(ctx).Create(store).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM stores WHERE id = ?`, id,
	).Scan(&store).Error
	if err != nil {
		return nil, err
	}
	if store.ID == 0 {
		return nil, nil
	}
	return &store, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	if store == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE stores
		 SET name = ?, default_currency = ?, expiration_minutes = ?, underpaid_percentage = ?,
		     transaction_speed = ?, randomize_wallet_selection = ?, include_network_fee = ?,
		     rate_rules = ?, recommended_fee_target_blocks = ?, updated_at = ?
		 WHERE id = ?`,
		store.Name,
		store.DefaultCurrency,
		store.ExpirationMinutes,
		store.UnderpaidPercentage,
		store.TransactionSpeed,
		store.RandomizeWalletSelection,
		store.IncludeNetworkFee,
		store.RateRules,
		store.RecommendedFeeTargetBlocks,
		store.UpdatedAt,
		store.ID,
	).Error
}
