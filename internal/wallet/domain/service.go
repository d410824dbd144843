package domain

import (
	"context"
	"errors"
)

// Resolver turns a wallet plus a target currency into the data needed to
// price a payment method.
type Resolver interface {
	// Resolve returns the wallet's symbol, divisibility, and the rate
	// expressed as target-currency per one wallet-currency unit. Rate
	// resolution falls back from the target currency to the store default,
	// then USD, then a literal rate of 1.
	Resolve(ctx context.Context, wallet *Wallet, targetCurrency string, rateRules, storeDefaultCurrency string) (*Data, error)
}

type Service interface {
	Resolver

	Create(ctx context.Context, req CreateRequest) (*Wallet, error)
	ListByStore(ctx context.Context, storeID int64) ([]Wallet, error)
}

type CreateRequest struct {
	StoreID          int64          `json:"store_id,string"`
	Currency         string         `json:"currency"`
	XPub             string         `json:"xpub"`
	Contract         string         `json:"contract,omitempty"`
	LightningEnabled bool           `json:"lightning_enabled"`
	AdditionalXPub   map[string]any `json:"additional_xpub_data,omitempty"`
}

var (
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidXPub     = errors.New("invalid_xpub")
	ErrNotFound        = errors.New("wallet_not_found")
)
