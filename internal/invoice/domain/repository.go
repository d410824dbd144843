package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreateInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	CreateMethods(ctx context.Context, db *gorm.DB, methods []PaymentMethod) error
	CreateProducts(ctx context.Context, db *gorm.DB, products []InvoiceProduct) error

	FindInvoice(ctx context.Context, db *gorm.DB, id int64) (*Invoice, error)
	// FindInvoiceForUpdate takes the row lock that serializes concurrent
	// status transitions; call it inside a transaction.
	FindInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*Invoice, error)

	FindMethod(ctx context.Context, db *gorm.DB, id int64) (*PaymentMethod, error)
	ListMethods(ctx context.Context, db *gorm.DB, invoiceID int64) ([]PaymentMethod, error)

	UpdateInvoice(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateMethod(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	// ClaimUserAddress sets user_address only when still empty; reports
	// whether this call won.
	ClaimUserAddress(ctx context.Context, db *gorm.DB, methodID int64, address string, updatedAt time.Time) (bool, error)

	ListEligibleDiscounts(ctx context.Context, db *gorm.DB, storeID int64, now time.Time) ([]Discount, error)
	ListDueForExpiration(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Invoice, error)
}
