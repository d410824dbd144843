package service

import (
	"context"
	"encoding/json"

	"github.com/smallbiznis/coinflow/internal/events"
	"github.com/smallbiznis/coinflow/internal/invoice/domain"
	"github.com/smallbiznis/coinflow/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// statusFor maps an observed confirmation count to the target status under
// the store's transaction_speed threshold. Speed 0 accepts unconfirmed
// payments as final.
func statusFor(confirmations, speed int) domain.InvoiceStatus {
	if speed <= 0 || confirmations >= speed {
		return domain.StatusComplete
	}
	if confirmations <= 0 {
		return domain.StatusPaid
	}
	return domain.StatusConfirmed
}

func clampConfirmations(confirmations int) int {
	if confirmations < 0 {
		return 0
	}
	if confirmations > domain.MaxConfirmations {
		return domain.MaxConfirmations
	}
	return confirmations
}

func (s *Service) ProcessPayment(ctx context.Context, event domain.PaymentEvent) error {
	if event.SentAmount.IsZero() || event.SentAmount.IsNegative() {
		return nil
	}

	// Resolve the store policy before taking the row lock; the lock must
	// only cover the read-modify-write of invoice plus method.
	current, err := s.repo.FindInvoice(ctx, s.db, event.InvoiceID)
	if err != nil {
		return err
	}
	if current == nil {
		return domain.ErrNotFound
	}
	settings, err := s.stores.Checkout(ctx, current.StoreID.Int64())
	if err != nil {
		return err
	}

	release := s.locks.acquire(event.InvoiceID)
	defer release()

	var changed *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindInvoiceForUpdate(ctx, tx, event.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}
		method, err := s.repo.FindMethod(ctx, tx, event.MethodID)
		if err != nil {
			return err
		}
		if method == nil || method.InvoiceID != invoice.ID {
			return domain.ErrMethodNotFound
		}

		now := s.clk.Now().UTC()
		confirmations := clampConfirmations(event.Confirmations)

		// Partial payment keeps the invoice PENDING and does not notify;
		// the customer may still top up.
		if event.SentAmount.LessThan(method.Amount) {
			if invoice.Status != domain.StatusPending {
				return nil
			}
			invoice.SentAmount = event.SentAmount
			invoice.ExceptionStatus = domain.ExceptionPaidPartial
			invoice.PaidCurrency = method.Currency
			invoice.UpdatedAt = now
			return s.repo.UpdateInvoice(ctx, tx, invoice)
		}

		next := statusFor(confirmations, settings.TransactionSpeed)
		if !domain.CanTransition(invoice.Status, next, event.SentAmount) {
			return nil
		}
		// At-most-once bind: a second wallet's event loses once payment_id
		// points elsewhere.
		if invoice.PaymentID != nil && *invoice.PaymentID != method.ID {
			return nil
		}

		invoice.Status = next
		if event.SentAmount.GreaterThan(method.Amount) {
			invoice.ExceptionStatus = domain.ExceptionPaidOver
		} else {
			invoice.ExceptionStatus = domain.ExceptionNone
		}
		invoice.SentAmount = event.SentAmount
		invoice.PaidCurrency = method.Currency
		invoice.DiscountID = method.DiscountID
		methodID := method.ID
		invoice.PaymentID = &methodID
		if len(event.TxHashes) > 0 {
			if raw, err := json.Marshal(event.TxHashes); err == nil {
				invoice.TxHashes = datatypes.JSON(raw)
			}
		}
		invoice.UpdatedAt = now

		method.Confirmations = confirmations
		method.IsUsed = true
		method.UpdatedAt = now

		if err := s.repo.UpdateInvoice(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.UpdateMethod(ctx, tx, method); err != nil {
			return err
		}
		changed = invoice
		return nil
	})
	if err != nil {
		return err
	}
	if changed != nil {
		s.notify(ctx, changed)
	}
	return nil
}

func (s *Service) MarkExpired(ctx context.Context, invoiceID int64) error {
	return s.transition(ctx, invoiceID, domain.StatusExpired)
}

func (s *Service) MarkRefunded(ctx context.Context, invoiceID int64) error {
	return s.transition(ctx, invoiceID, domain.StatusRefunded)
}

// transition applies a payment-independent status change. A transition the
// guard rejects is a silent no-op, which makes expiration idempotent.
func (s *Service) transition(ctx context.Context, invoiceID int64, next domain.InvoiceStatus) error {
	release := s.locks.acquire(invoiceID)
	defer release()

	var changed *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindInvoiceForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}
		if !domain.CanTransition(invoice.Status, next, invoice.SentAmount) {
			return nil
		}
		invoice.Status = next
		invoice.UpdatedAt = s.clk.Now().UTC()
		if err := s.repo.UpdateInvoice(ctx, tx, invoice); err != nil {
			return err
		}
		changed = invoice
		return nil
	})
	if err != nil {
		return err
	}
	if changed != nil {
		s.notify(ctx, changed)
	}
	return nil
}

// notify fires the exactly-once side effects of an applied transition: the
// in-process hub, external publishers, and observer hooks.
func (s *Service) notify(ctx context.Context, invoice *domain.Invoice) {
	metrics.Core().IncStatusTransition(string(invoice.Status))

	event := events.StatusEvent{
		EventID:         events.NewEventID(),
		InvoiceID:       invoice.ID.String(),
		StoreID:         invoice.StoreID.String(),
		Status:          string(invoice.Status),
		ExceptionStatus: string(invoice.ExceptionStatus),
		PaidCurrency:    invoice.PaidCurrency,
		SentAmount:      invoice.SentAmount,
		CreatedAt:       s.clk.Now().UTC(),
	}
	s.hub.Publish(event)
	for _, publisher := range s.publishers {
		if err := publisher.PublishStatus(ctx, event); err != nil {
			s.log.Warn("status publish failed",
				zap.String("invoice_id", event.InvoiceID),
				zap.Error(err))
		}
	}
	for _, observer := range s.observers {
		observer.InvoiceStatusChanged(ctx, invoice)
	}
}
