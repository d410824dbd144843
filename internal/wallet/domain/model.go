package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Wallet struct {
	ID      snowflake.ID `gorm:"primaryKey"`
	StoreID snowflake.ID `gorm:"column:store_id;not null;index"`

	Currency string `gorm:"type:text;not null"`
	XPub     string `gorm:"column:xpub;type:text;not null"`
	// Contract is the token contract address for assets that settle through
	// another chain's daemon.
	Contract           string            `gorm:"type:text;not null;default:''"`
	LightningEnabled   bool              `gorm:"not null;default:false"`
	AdditionalXPubData datatypes.JSONMap `gorm:"column:additional_xpub_data;type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Wallet) TableName() string { return "wallets" }

// Data is the resolved view of a wallet used to build a payment method: the
// asset symbol, its decimal places, and the fiat-per-coin rate.
type Data struct {
	Symbol       string
	Divisibility int32
	Rate         decimal.Decimal
}
