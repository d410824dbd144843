package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusEvent is emitted exactly once per qualifying invoice status
// transition. EventID is unique per emission so downstream consumers can
// deduplicate redelivered messages.
type StatusEvent struct {
	EventID         string          `json:"event_id"`
	InvoiceID       string          `json:"invoice_id"`
	StoreID         string          `json:"store_id"`
	Status          string          `json:"status"`
	ExceptionStatus string          `json:"exception_status"`
	PaidCurrency    string          `json:"paid_currency,omitempty"`
	SentAmount      decimal.Decimal `json:"sent_amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewEventID returns a fresh identifier for an emitted event.
func NewEventID() string {
	return uuid.NewString()
}

// Publisher pushes status events to an external channel (webhooks, queues).
// Implementations must be safe for concurrent use.
type Publisher interface {
	PublishStatus(ctx context.Context, event StatusEvent) error
}
