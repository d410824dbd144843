package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	// Create validates the request, fans out payment-method creation across
	// the store's wallets, and persists the invoice with its methods in one
	// transaction.
	Create(ctx context.Context, req CreateRequest) (*Invoice, []PaymentMethod, error)
	Get(ctx context.Context, id int64) (*Invoice, error)
	Methods(ctx context.Context, invoiceID int64) ([]PaymentMethod, error)

	// ProcessPayment folds a chain-watcher event into the invoice status
	// machine. Losers of the concurrent-bind race observe the applied state
	// and mutate nothing.
	ProcessPayment(ctx context.Context, event PaymentEvent) error

	// SetUserAddress records a customer-supplied destination address on a
	// method; it is settable exactly once.
	SetUserAddress(ctx context.Context, methodID int64, address string) error

	// MarkExpired transitions a still-PENDING invoice to EXPIRED. Re-running
	// it on a non-PENDING invoice is a no-op.
	MarkExpired(ctx context.Context, invoiceID int64) error
	MarkRefunded(ctx context.Context, invoiceID int64) error

	// DueForExpiration lists PENDING invoices whose deadline has elapsed.
	DueForExpiration(ctx context.Context, now time.Time, limit int) ([]Invoice, error)
}

// Observer receives extension-point callbacks. The core works with an empty
// observer list.
type Observer interface {
	// PreCreatePaymentMethod may veto a wallet by returning false.
	PreCreatePaymentMethod(ctx context.Context, invoice *Invoice, walletCurrency string) bool
	PostCreatePaymentMethod(ctx context.Context, invoice *Invoice, method *PaymentMethod)
	InvoiceStatusChanged(ctx context.Context, invoice *Invoice)
}

type CreateRequest struct {
	StoreID   int64           `json:"store_id,string"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	OrderID   string          `json:"order_id,omitempty"`
	Promocode string          `json:"promocode,omitempty"`
	Products  []ProductLine   `json:"products,omitempty"`
}

type ProductLine struct {
	ProductID int64 `json:"product_id,string"`
	Quantity  int   `json:"quantity"`
}

// PaymentEvent is one payment/confirmation observation for a single payment
// method, pushed by the external chain watcher.
type PaymentEvent struct {
	InvoiceID     int64
	MethodID      int64
	SentAmount    decimal.Decimal
	TxHashes      []string
	Confirmations int
}

var (
	ErrInvalidPrice      = errors.New("invalid_price")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrNoWallets         = errors.New("store_has_no_wallets")
	ErrNotFound          = errors.New("invoice_not_found")
	ErrMethodNotFound    = errors.New("payment_method_not_found")
	ErrAddressAlreadySet = errors.New("user_address_already_set")
)
