package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/coinflow/internal/clock"
	invoicedomain "github.com/smallbiznis/coinflow/internal/invoice/domain"
	"github.com/smallbiznis/coinflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Config     Config `optional:"true"`
}

// Scheduler expires overdue PENDING invoices. Each due invoice gets its own
// task so one failure never blocks the rest of the batch.
type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

// RunOnce expires one batch of due invoices and returns the join of
// per-invoice errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	metrics.Core().IncExpirationRun()

	due, err := s.invoiceSvc.DueForExpiration(ctx, s.clock.Now().UTC(), s.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    []error
		expired int
	)
	for i := range due {
		invoice := due[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.invoiceSvc.MarkExpired(ctx, invoice.ID.Int64()); err != nil {
				s.log.Warn("expiration failed",
					zap.String("invoice_id", invoice.ID.String()),
					zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			mu.Lock()
			expired++
			mu.Unlock()
		}()
	}
	wg.Wait()

	metrics.Core().AddExpiredInvoices(expired)
	metrics.Core().ObserveExpirationRun(s.clock.Now().Sub(start))
	if expired > 0 {
		s.log.Info("expired invoices",
			zap.Int("count", expired),
			zap.Int("due", len(due)))
	}
	return errors.Join(errs...)
}

// RunForever loops RunOnce until ctx is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("expiration run finished with errors", zap.Error(err))
			}
		}
	}
}
