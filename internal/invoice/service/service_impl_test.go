package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/coin"
	"github.com/smallbiznis/coinflow/internal/events"
	"github.com/smallbiznis/coinflow/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/coinflow/internal/invoice/repository"
	"github.com/smallbiznis/coinflow/internal/rates"
	storedomain "github.com/smallbiznis/coinflow/internal/store/domain"
	storerepo "github.com/smallbiznis/coinflow/internal/store/repository"
	storeservice "github.com/smallbiznis/coinflow/internal/store/service"
	walletdomain "github.com/smallbiznis/coinflow/internal/wallet/domain"
	walletrepo "github.com/smallbiznis/coinflow/internal/wallet/repository"
	walletservice "github.com/smallbiznis/coinflow/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeCoin is an in-memory wallet daemon.
type fakeCoin struct {
	mu        sync.Mutex
	requests  int
	lightning bool
	fee       decimal.Decimal
	fail      bool
}

func (f *fakeCoin) AddRequest(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*coin.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("daemon unreachable")
	}
	f.requests++
	return &coin.Request{
		Address:   fmt.Sprintf("addr-%d", f.requests),
		URI:       fmt.Sprintf("bitcoin:addr-%d?amount=%s", f.requests, amount),
		LookupKey: fmt.Sprintf("req-%d", f.requests),
	}, nil
}

func (f *fakeCoin) AddInvoice(ctx context.Context, xpub string, amount decimal.Decimal, description string, expire int64) (*coin.Invoice, error) {
	if !f.lightning {
		return nil, coin.ErrLightningUnsupported
	}
	return &coin.Invoice{Invoice: "lnbc1fake", RHash: "rhash-1"}, nil
}

func (f *fakeCoin) NodeID(ctx context.Context) (string, error) {
	if !f.lightning {
		return "", coin.ErrLightningUnsupported
	}
	return "02fakenode", nil
}

func (f *fakeCoin) GetRequest(ctx context.Context, xpub, lookupKey string) (*coin.RequestStatus, error) {
	return &coin.RequestStatus{}, nil
}

func (f *fakeCoin) GetTx(ctx context.Context, txHash string) (*coin.TxInfo, error) {
	return &coin.TxInfo{}, nil
}

func (f *fakeCoin) RecommendedFee(ctx context.Context, targetBlocks int) (decimal.Decimal, error) {
	return f.fee, nil
}

type harness struct {
	db      *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	hub     *events.Hub
	coin    *fakeCoin
	stores  storedomain.Service
	wallets walletdomain.Service
	svc     domain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	// SQLite support hack: remove FOR UPDATE clauses
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate))

	require.NoError(t, db.AutoMigrate(
		&storedomain.Store{},
		&walletdomain.Wallet{},
		&domain.Invoice{},
		&domain.PaymentMethod{},
		&domain.Discount{},
		&domain.InvoiceProduct{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	registry := rates.NewRegistry(log, clk)
	engine := rates.NewEngine(registry, log)

	stores := storeservice.New(storeservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: storerepo.Provide(),
	})
	wallets := walletservice.New(walletservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: walletrepo.Provide(), Engine: engine,
	})

	fake := &fakeCoin{}
	hub := events.NewHub()

	svc := New(Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   clk,
		Repo:    invoicerepo.Provide(),
		Wallets: wallets,
		Stores:  stores,
		Coins:   coin.NewRegistry(map[string]coin.Client{"btc": fake, "ltc": fake, "eth": fake}),
		Hub:     hub,
	})

	return &harness{
		db:      db,
		node:    node,
		clk:     clk,
		hub:     hub,
		coin:    fake,
		stores:  stores,
		wallets: wallets,
		svc:     svc,
	}
}

func (h *harness) newStore(t *testing.T, mutate func(*storedomain.UpdateCheckoutRequest)) *storedomain.Store {
	t.Helper()
	store, err := h.stores.Create(context.Background(), storedomain.CreateRequest{Name: "Test Store"})
	require.NoError(t, err)

	rules := "BTC_USD = 50000\nLTC_USD = 100"
	req := storedomain.UpdateCheckoutRequest{ID: store.ID.Int64(), RateRules: &rules}
	if mutate != nil {
		mutate(&req)
	}
	store, err = h.stores.UpdateCheckout(context.Background(), req)
	require.NoError(t, err)
	return store
}

func (h *harness) newWallet(t *testing.T, storeID int64, currency string) *walletdomain.Wallet {
	t.Helper()
	wallet, err := h.wallets.Create(context.Background(), walletdomain.CreateRequest{
		StoreID: storeID, Currency: currency, XPub: "xpub-" + currency,
	})
	require.NoError(t, err)
	return wallet
}

func (h *harness) addDiscount(t *testing.T, storeID snowflake.ID, percent float64, promocode, currencies string) *domain.Discount {
	t.Helper()
	discount := &domain.Discount{
		ID:         h.node.Generate(),
		StoreID:    storeID,
		Percent:    decimal.NewFromFloat(percent),
		Promocode:  promocode,
		Currencies: currencies,
		EndDate:    h.clk.Now().Add(24 * time.Hour),
		CreatedAt:  h.clk.Now(),
		UpdatedAt:  h.clk.Now(),
	}
	require.NoError(t, h.db.Create(discount).Error)
	return discount
}

func TestCreate_DiscountedBTCAmount(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.newWallet(t, store.ID.Int64(), "btc")
	h.addDiscount(t, store.ID, 50, "", "BTC")

	invoice, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID:  store.ID.Int64(),
		Price:    decimal.NewFromInt(100),
		Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	// 100 USD, 50% off, 50000 USD/BTC => 0.001 BTC after 8-decimal round-up.
	assert.True(t, methods[0].Amount.Equal(decimal.RequireFromString("0.001")),
		"got amount %s", methods[0].Amount)
	assert.NotNil(t, methods[0].DiscountID)
	assert.Equal(t, "BTC", methods[0].Currency)
	assert.NotEmpty(t, methods[0].PaymentAddress)
	assert.Equal(t, domain.StatusPending, invoice.Status)

	// Re-derived rate recovers the requested fiat sum exactly.
	assert.True(t, methods[0].Rate.Mul(methods[0].Amount).Equal(decimal.NewFromInt(50)))
}

func TestCreate_DiscountTieBreakIsOldestFirst(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.newWallet(t, store.ID.Int64(), "btc")

	// Equal percentages tie-break on created_at, not insertion order.
	base := h.clk.Now()
	late := &domain.Discount{
		ID: h.node.Generate(), StoreID: store.ID, Percent: decimal.NewFromInt(10),
		Currencies: "BTC", EndDate: base.Add(24 * time.Hour),
		CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour),
	}
	require.NoError(t, h.db.Create(late).Error)
	early := &domain.Discount{
		ID: h.node.Generate(), StoreID: store.ID, Percent: decimal.NewFromInt(10),
		Currencies: "BTC", EndDate: base.Add(24 * time.Hour),
		CreatedAt: base, UpdatedAt: base,
	}
	require.NoError(t, h.db.Create(early).Error)

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(100), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)
	require.NotNil(t, methods[0].DiscountID)
	assert.Equal(t, early.ID, *methods[0].DiscountID)
}

func TestCreate_ValidationErrors(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)

	_, _, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.Zero, Currency: "USD",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	// No wallets configured is a structural rejection.
	_, _, err = h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	assert.ErrorIs(t, err, domain.ErrNoWallets)
}

func TestCreate_WalletFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.newWallet(t, store.ID.Int64(), "btc")
	h.coin.fail = true

	invoice, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	require.NoError(t, err)
	assert.Empty(t, methods)
	assert.Equal(t, domain.StatusPending, invoice.Status)
}

func TestCreate_UnderpaidTolerance(t *testing.T) {
	h := newHarness(t)
	underpaid := 2.0
	store := h.newStore(t, func(req *storedomain.UpdateCheckoutRequest) {
		req.UnderpaidPercentage = &underpaid
	})
	h.newWallet(t, store.ID.Int64(), "btc")

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(100), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	// 100 USD * 98% / 50000 = 0.00196 BTC requested at the address.
	assert.True(t, methods[0].Amount.Equal(decimal.RequireFromString("0.00196")),
		"got amount %s", methods[0].Amount)
}

func TestCreate_RandomizeOneMethodPerSymbol(t *testing.T) {
	h := newHarness(t)
	randomize := true
	store := h.newStore(t, func(req *storedomain.UpdateCheckoutRequest) {
		req.RandomizeWalletSelection = &randomize
	})
	h.newWallet(t, store.ID.Int64(), "btc")
	h.newWallet(t, store.ID.Int64(), "btc")

	for i := 0; i < 100; i++ {
		_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
			StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
		})
		require.NoError(t, err)
		require.Len(t, methods, 1, "iteration %d produced duplicate methods", i)
	}
}

func TestCreate_AllWalletsWithoutRandomize(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.newWallet(t, store.ID.Int64(), "btc")
	h.newWallet(t, store.ID.Int64(), "ltc")

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 2)

	currencies := []string{methods[0].Currency, methods[1].Currency}
	assert.ElementsMatch(t, []string{"BTC", "LTC"}, currencies)
}

func TestCreate_NetworkFeeIncluded(t *testing.T) {
	h := newHarness(t)
	include := true
	store := h.newStore(t, func(req *storedomain.UpdateCheckoutRequest) {
		req.IncludeNetworkFee = &include
	})
	h.newWallet(t, store.ID.Int64(), "btc")
	h.coin.fee = decimal.RequireFromString("0.00001")

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(100), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	// 100/50000 = 0.002, plus the 0.00001 fee.
	assert.True(t, methods[0].Amount.Equal(decimal.RequireFromString("0.00201")),
		"got amount %s", methods[0].Amount)
	assert.True(t, methods[0].RecommendedFee.Equal(h.coin.fee))
}

func TestCreate_NetworkFeeConvertedForTokenWallet(t *testing.T) {
	h := newHarness(t)
	include := true
	store := h.newStore(t, func(req *storedomain.UpdateCheckoutRequest) {
		req.IncludeNetworkFee = &include
		rules := "USDT_USD = 1\nETH_USD = 2000"
		req.RateRules = &rules
	})
	h.newWallet(t, store.ID.Int64(), "usdt")
	// USDT settles through the eth daemon, so the estimate is in ETH.
	h.coin.fee = decimal.RequireFromString("0.001")

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(100), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	// 100 USD at 1 USDT/USD = 100 USDT, plus 0.001 ETH * 2000/1 = 2 USDT fee.
	assert.True(t, methods[0].Amount.Equal(decimal.RequireFromString("102")),
		"got amount %s", methods[0].Amount)
	assert.True(t, methods[0].RecommendedFee.Equal(decimal.NewFromInt(2)),
		"got fee %s", methods[0].RecommendedFee)
}

func TestCreate_LightningVariant(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.coin.lightning = true

	_, err := h.wallets.Create(context.Background(), walletdomain.CreateRequest{
		StoreID: store.ID.Int64(), Currency: "btc", XPub: "xpub-ln", LightningEnabled: true,
	})
	require.NoError(t, err)

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 2)

	var lightning *domain.PaymentMethod
	for i := range methods {
		if methods[i].Lightning {
			lightning = &methods[i]
		}
	}
	require.NotNil(t, lightning)
	assert.Equal(t, "02fakenode", lightning.NodeID)
	assert.Equal(t, "rhash-1", lightning.RHash)
}

func TestCreate_LightningUnsupportedKeepsOnchain(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	// Daemon has no lightning node even though the wallet enables it.
	_, err := h.wallets.Create(context.Background(), walletdomain.CreateRequest{
		StoreID: store.ID.Int64(), Currency: "btc", XPub: "xpub-ln", LightningEnabled: true,
	})
	require.NoError(t, err)

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.False(t, methods[0].Lightning)
}

func TestSetUserAddress_Once(t *testing.T) {
	h := newHarness(t)
	store := h.newStore(t, nil)
	h.newWallet(t, store.ID.Int64(), "btc")

	_, methods, err := h.svc.Create(context.Background(), domain.CreateRequest{
		StoreID: store.ID.Int64(), Price: decimal.NewFromInt(10), Currency: "USD",
	})
	require.NoError(t, err)
	require.Len(t, methods, 1)

	methodID := methods[0].ID.Int64()
	require.NoError(t, h.svc.SetUserAddress(context.Background(), methodID, "bc1quser"))
	err = h.svc.SetUserAddress(context.Background(), methodID, "bc1qother")
	assert.ErrorIs(t, err, domain.ErrAddressAlreadySet)
}
