package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Wallet, error)
	ListByStore(ctx context.Context, db *gorm.DB, storeID int64) ([]Wallet, error)
}
