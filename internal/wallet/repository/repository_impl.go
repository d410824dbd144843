package repository

import (
	"context"

	"github.com/smallbiznis/coinflow/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Create(wallet).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM wallets WHERE id = ?`, id,
	).Scan(&wallet).Error
	if err != nil {
		return nil, err
	}
	if wallet.ID == 0 {
		return nil, nil
	}
	return &wallet, nil
}

func (r *repo) ListByStore(ctx context.Context, db *gorm.DB, storeID int64) ([]domain.Wallet, error) {
	var wallets []domain.Wallet
	err := db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("store_id = ?", storeID).
		Order("id").
		Find(&wallets).Error
	if err != nil {
		return nil, err
	}
	return wallets, nil
}
