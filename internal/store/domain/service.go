package domain

import (
	"context"
	"errors"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Store, error)
	Get(ctx context.Context, id int64) (*Store, error)
	UpdateCheckout(ctx context.Context, req UpdateCheckoutRequest) (*Store, error)
	// Checkout merges the store's checkout columns with the global fallback
	// config into one effective policy.
	Checkout(ctx context.Context, id int64) (*CheckoutSettings, error)
}

type CreateRequest struct {
	Name            string `json:"name"`
	DefaultCurrency string `json:"default_currency"`
}

type UpdateCheckoutRequest struct {
	ID                         int64    `json:"id,string"`
	ExpirationMinutes          *int     `json:"expiration_minutes,omitempty"`
	UnderpaidPercentage        *float64 `json:"underpaid_percentage,omitempty"`
	TransactionSpeed           *int     `json:"transaction_speed,omitempty"`
	RandomizeWalletSelection   *bool    `json:"randomize_wallet_selection,omitempty"`
	IncludeNetworkFee          *bool    `json:"include_network_fee,omitempty"`
	RateRules                  *string  `json:"rate_rules,omitempty"`
	RecommendedFeeTargetBlocks *int     `json:"recommended_fee_target_blocks,omitempty"`
	DefaultCurrency            *string  `json:"default_currency,omitempty"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrNotFound         = errors.New("store_not_found")
	ErrInvalidUnderpaid = errors.New("invalid_underpaid_percentage")
	ErrInvalidSpeed     = errors.New("invalid_transaction_speed")
)
