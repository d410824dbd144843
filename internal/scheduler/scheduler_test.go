package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	invoicedomain "github.com/smallbiznis/coinflow/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// invoiceSvcStub implements just enough of the invoice service for the loop.
type invoiceSvcStub struct {
	mu      sync.Mutex
	due     []invoicedomain.Invoice
	expired []int64
	failFor map[int64]error
}

func (s *invoiceSvcStub) DueForExpiration(ctx context.Context, now time.Time, limit int) ([]invoicedomain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.due) > limit {
		return s.due[:limit], nil
	}
	return s.due, nil
}

func (s *invoiceSvcStub) MarkExpired(ctx context.Context, invoiceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[invoiceID]; ok {
		return err
	}
	s.expired = append(s.expired, invoiceID)
	return nil
}

func (s *invoiceSvcStub) Create(context.Context, invoicedomain.CreateRequest) (*invoicedomain.Invoice, []invoicedomain.PaymentMethod, error) {
	return nil, nil, nil
}
func (s *invoiceSvcStub) Get(context.Context, int64) (*invoicedomain.Invoice, error) {
	return nil, nil
}
func (s *invoiceSvcStub) Methods(context.Context, int64) ([]invoicedomain.PaymentMethod, error) {
	return nil, nil
}
func (s *invoiceSvcStub) ProcessPayment(context.Context, invoicedomain.PaymentEvent) error {
	return nil
}
func (s *invoiceSvcStub) SetUserAddress(context.Context, int64, string) error { return nil }
func (s *invoiceSvcStub) MarkRefunded(context.Context, int64) error           { return nil }

func dueInvoice(node *snowflake.Node) invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:     node.Generate(),
		Price:  decimal.NewFromInt(10),
		Status: invoicedomain.StatusPending,
	}
}

func newTestScheduler(t *testing.T, stub *invoiceSvcStub) *Scheduler {
	t.Helper()
	sched, err := New(Params{
		Log:        zap.NewNop(),
		Clock:      clock.NewFakeClock(time.Now()),
		InvoiceSvc: stub,
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnce_ExpiresAllDue(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	stub := &invoiceSvcStub{
		due: []invoicedomain.Invoice{dueInvoice(node), dueInvoice(node), dueInvoice(node)},
	}
	sched := newTestScheduler(t, stub)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Len(t, stub.expired, 3)
}

func TestRunOnce_OneFailureDoesNotBlockOthers(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	failing := dueInvoice(node)
	stub := &invoiceSvcStub{
		due:     []invoicedomain.Invoice{dueInvoice(node), failing, dueInvoice(node)},
		failFor: map[int64]error{failing.ID.Int64(): errors.New("already deleted")},
	}
	sched := newTestScheduler(t, stub)

	err = sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, stub.expired, 2)
	assert.NotContains(t, stub.expired, failing.ID.Int64())
}

func TestRunOnce_EmptyBatch(t *testing.T) {
	sched := newTestScheduler(t, &invoiceSvcStub{})
	assert.NoError(t, sched.RunOnce(context.Background()))
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)

	custom := Config{RunInterval: 5 * time.Second, BatchSize: 7}.withDefaults()
	assert.Equal(t, 5*time.Second, custom.RunInterval)
	assert.Equal(t, 7, custom.BatchSize)
}
