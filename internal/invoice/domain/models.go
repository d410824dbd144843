// Package domain contains persistence models for crypto checkout invoices.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "PENDING"
	StatusPaid      InvoiceStatus = "PAID"
	StatusConfirmed InvoiceStatus = "CONFIRMED"
	StatusComplete  InvoiceStatus = "COMPLETE"
	StatusExpired   InvoiceStatus = "EXPIRED"
	StatusInvalid   InvoiceStatus = "INVALID"
	StatusRefunded  InvoiceStatus = "REFUNDED"
)

// ExceptionStatus is the orthogonal over/under payment sub-state.
type ExceptionStatus string

const (
	ExceptionNone        ExceptionStatus = "none"
	ExceptionPaidPartial ExceptionStatus = "paid_partial"
	ExceptionPaidOver    ExceptionStatus = "paid_over"
)

// MaxConfirmations caps confirmation tracking; deeper reorgs are not this
// system's problem.
const MaxConfirmations = 6

// Invoice is a payment request against a store, funded through one of its
// payment methods.
type Invoice struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	StoreID snowflake.ID `gorm:"column:store_id;not null;index"`

	Price    decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Currency string          `gorm:"type:text;not null"`

	Status          InvoiceStatus   `gorm:"type:text;not null;default:'PENDING';index"`
	ExceptionStatus ExceptionStatus `gorm:"type:text;not null;default:'none'"`

	ExpirationMinutes int       `gorm:"not null"`
	ExpiresAt         time.Time `gorm:"not null;index"`

	Promocode string `gorm:"type:text;not null;default:''"`
	OrderID   string `gorm:"type:text;not null;default:''"`

	// Funding state, written only by the status machine.
	SentAmount   decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`
	PaidCurrency string          `gorm:"type:text;not null;default:''"`
	PaymentID    *snowflake.ID   `gorm:"column:payment_id"`
	DiscountID   *snowflake.ID   `gorm:"column:discount_id"`
	TxHashes     datatypes.JSON  `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invoice) TableName() string { return "invoices" }

// PaymentMethod is one funding destination offered against an invoice,
// denominated in one wallet's currency.
type PaymentMethod struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;index"`
	WalletID  snowflake.ID `gorm:"column:wallet_id;not null"`

	Currency string          `gorm:"type:text;not null"`
	Amount   decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Rate     decimal.Decimal `gorm:"type:numeric(36,18);not null"`

	DiscountID *snowflake.ID `gorm:"column:discount_id"`

	PaymentAddress string `gorm:"type:text;not null;default:''"`
	PaymentURL     string `gorm:"type:text;not null;default:''"`
	LookupKey      string `gorm:"type:text;not null;default:'';index"`

	Lightning bool   `gorm:"not null;default:false"`
	RHash     string `gorm:"column:rhash;type:text;not null;default:''"`
	NodeID    string `gorm:"column:node_id;type:text;not null;default:''"`

	Confirmations  int             `gorm:"not null;default:0"`
	RecommendedFee decimal.Decimal `gorm:"type:numeric(36,18);not null;default:0"`

	IsUsed      bool   `gorm:"not null;default:false"`
	UserAddress string `gorm:"type:text;not null;default:''"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// Discount is a percent-off promotion, optionally scoped by promocode and
// payment currency.
type Discount struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	StoreID snowflake.ID `gorm:"column:store_id;not null;index"`

	Percent   decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	Promocode string          `gorm:"type:text;not null;default:''"`
	// Currencies is a comma-separated allow-list; empty means any currency.
	Currencies string    `gorm:"type:text;not null;default:''"`
	EndDate    time.Time `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Discount) TableName() string { return "discounts" }

// Eligible reports whether the discount applies for the given promocode and
// wallet currency at the given time.
func (d *Discount) Eligible(now time.Time, promocode, currency string) bool {
	if !d.EndDate.After(now) {
		return false
	}
	if d.Promocode != "" && !strings.EqualFold(d.Promocode, strings.TrimSpace(promocode)) {
		return false
	}
	if d.Currencies == "" {
		return true
	}
	for _, allowed := range strings.Split(d.Currencies, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), strings.TrimSpace(currency)) {
			return true
		}
	}
	return false
}

// InvoiceProduct links an invoice to a purchased product with a quantity.
type InvoiceProduct struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"column:invoice_id;not null;index"`
	ProductID snowflake.ID `gorm:"column:product_id;not null"`
	Quantity  int          `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceProduct) TableName() string { return "invoice_products" }

var statusRank = map[InvoiceStatus]int{
	StatusPending:   0,
	StatusPaid:      1,
	StatusConfirmed: 2,
	StatusComplete:  3,
	StatusExpired:   3,
	StatusInvalid:   3,
	StatusRefunded:  4,
}

// CanTransition implements the update_status guard: the new status must
// differ, PENDING re-entry with no funds is rejected, COMPLETE only ever
// moves to REFUNDED, and payment progress is rank-monotonic.
func CanTransition(current, next InvoiceStatus, sentAmount decimal.Decimal) bool {
	if next == current {
		return false
	}
	switch current {
	case StatusComplete:
		return next == StatusRefunded
	case StatusExpired, StatusInvalid, StatusRefunded:
		return false
	}

	switch next {
	case StatusPending:
		return !sentAmount.IsZero()
	case StatusExpired, StatusInvalid:
		return current == StatusPending
	case StatusRefunded:
		// Only COMPLETE invoices can be refunded, handled above.
		return false
	default:
		return statusRank[next] > statusRank[current]
	}
}
