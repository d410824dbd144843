package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, store *Store) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Store, error)
	Update(ctx context.Context, db *gorm.DB, store *Store) error
}
