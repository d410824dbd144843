package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/rates"
	"github.com/smallbiznis/coinflow/internal/wallet/domain"
	"github.com/smallbiznis/coinflow/internal/wallet/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type quoteSource struct {
	name   string
	quotes map[string]decimal.Decimal
}

func (s *quoteSource) Name() string { return s.name }

func (s *quoteSource) FetchQuotes(ctx context.Context) (map[string]decimal.Decimal, error) {
	return s.quotes, nil
}

func newTestService(t *testing.T, quotes map[string]decimal.Decimal) domain.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Wallet{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Now())
	registry := rates.NewRegistry(zap.NewNop(), fake, &quoteSource{name: "coingecko", quotes: quotes})

	return New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Repo:   repository.Provide(),
		Engine: rates.NewEngine(registry, zap.NewNop()),
	})
}

func TestCreateAndList(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	wallet, err := svc.Create(ctx, domain.CreateRequest{StoreID: 7, Currency: "btc", XPub: "xpub-a"})
	require.NoError(t, err)
	assert.Equal(t, "BTC", wallet.Currency)

	_, err = svc.Create(ctx, domain.CreateRequest{StoreID: 7, Currency: "ltc", XPub: "xpub-b"})
	require.NoError(t, err)

	wallets, err := svc.ListByStore(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, wallets, 2)

	_, err = svc.Create(ctx, domain.CreateRequest{StoreID: 7, Currency: "btc"})
	assert.ErrorIs(t, err, domain.ErrInvalidXPub)
}

func TestResolve_TargetCurrency(t *testing.T) {
	svc := newTestService(t, map[string]decimal.Decimal{"BTC_EUR": decimal.NewFromInt(46000)})

	data, err := svc.Resolve(context.Background(), &domain.Wallet{Currency: "btc"}, "EUR", "", "USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC", data.Symbol)
	assert.Equal(t, int32(8), data.Divisibility)
	assert.True(t, data.Rate.Equal(decimal.NewFromInt(46000)))
}

func TestResolve_FallbackToStoreDefault(t *testing.T) {
	svc := newTestService(t, map[string]decimal.Decimal{"BTC_USD": decimal.NewFromInt(50000)})

	// No BTC_JPY quote; the store default USD is the next stop.
	data, err := svc.Resolve(context.Background(), &domain.Wallet{Currency: "BTC"}, "JPY", "", "USD")
	require.NoError(t, err)
	assert.True(t, data.Rate.Equal(decimal.NewFromInt(50000)))
}

func TestResolve_LiteralOneWhenExhausted(t *testing.T) {
	svc := newTestService(t, nil)

	data, err := svc.Resolve(context.Background(), &domain.Wallet{Currency: "BTC"}, "JPY", "", "EUR")
	require.NoError(t, err)
	assert.True(t, data.Rate.Equal(decimal.NewFromInt(1)))
}

func TestResolve_CustomRules(t *testing.T) {
	svc := newTestService(t, nil)

	data, err := svc.Resolve(context.Background(), &domain.Wallet{Currency: "BTC"}, "USD", "BTC_USD = 42000", "USD")
	require.NoError(t, err)
	assert.True(t, data.Rate.Equal(decimal.NewFromInt(42000)))
}
