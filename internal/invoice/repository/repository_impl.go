package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/coinflow/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) CreateMethods(ctx context.Context, db *gorm.DB, methods []domain.PaymentMethod) error {
	if len(methods) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&methods).Error
}

func (r *repo) CreateProducts(ctx context.Context, db *gorm.DB, products []domain.InvoiceProduct) error {
	if len(products) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&products).Error
}

func (r *repo) FindInvoice(ctx context.Context, db *gorm.DB, id int64) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ?`, id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindInvoiceForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ? FOR UPDATE`, id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindMethod(ctx context.Context, db *gorm.DB, id int64) (*domain.PaymentMethod, error) {
	var method domain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM payment_methods WHERE id = ?`, id,
	).Scan(&method).Error
	if err != nil {
		return nil, err
	}
	if method.ID == 0 {
		return nil, nil
	}
	return &method, nil
}

func (r *repo) ListMethods(ctx context.Context, db *gorm.DB, invoiceID int64) ([]domain.PaymentMethod, error) {
	var methods []domain.PaymentMethod
	err := db.WithContext(ctx).
		Model(&domain.PaymentMethod{}).
		Where("invoice_id = ?", invoiceID).
		Order("id").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repo) UpdateInvoice(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, exception_status = ?, sent_amount = ?, paid_currency = ?,
		     payment_id = ?, discount_id = ?, tx_hashes = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.Status,
		invoice.ExceptionStatus,
		invoice.SentAmount,
		invoice.PaidCurrency,
		invoice.PaymentID,
		invoice.DiscountID,
		invoice.TxHashes,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) UpdateMethod(ctx context.Context, db *gorm.DB, method *domain.PaymentMethod) error {
	if method == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE payment_methods
		 SET confirmations = ?, is_used = ?, updated_at = ?
		 WHERE id = ?`,
		method.Confirmations,
		method.IsUsed,
		method.UpdatedAt,
		method.ID,
	).Error
}

func (r *repo) ClaimUserAddress(ctx context.Context, db *gorm.DB, methodID int64, address string, updatedAt time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_methods
		 SET user_address = ?, updated_at = ?
		 WHERE id = ? AND user_address = ''`,
		address,
		updatedAt,
		methodID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListEligibleDiscounts(ctx context.Context, db *gorm.DB, storeID int64, now time.Time) ([]domain.Discount, error) {
	var discounts []domain.Discount
	err := db.WithContext(ctx).
		Model(&domain.Discount{}).
		Where("store_id = ? AND end_date > ?", storeID, now).
		Order("created_at").
		Find(&discounts).Error
	if err != nil {
		return nil, err
	}
	return discounts, nil
}

func (r *repo) ListDueForExpiration(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ? AND expires_at <= ?", domain.StatusPending, now).
		Order("expires_at")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}
