package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Store struct {
	ID   snowflake.ID `gorm:"primaryKey"`
	Name string       `gorm:"type:text;not null"`

	DefaultCurrency string `gorm:"type:text;not null;default:'USD'"`

	// Checkout settings. Zero values defer to the global checkout config.
	ExpirationMinutes          int             `gorm:"not null;default:0"`
	UnderpaidPercentage        decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	TransactionSpeed           *int            `gorm:"column:transaction_speed"`
	RandomizeWalletSelection   bool            `gorm:"not null;default:false"`
	IncludeNetworkFee          bool            `gorm:"not null;default:false"`
	RateRules                  string          `gorm:"type:text;not null;default:''"`
	RecommendedFeeTargetBlocks int             `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Store) TableName() string { return "stores" }

// CheckoutSettings is the effective per-store checkout policy after merging
// store columns with the global checkout config.
type CheckoutSettings struct {
	ExpirationMinutes          int
	UnderpaidPercentage        decimal.Decimal
	TransactionSpeed           int
	RandomizeWalletSelection   bool
	IncludeNetworkFee          bool
	RateRules                  string
	RecommendedFeeTargetBlocks int
	DefaultCurrency            string
}
