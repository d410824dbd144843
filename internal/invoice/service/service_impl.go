package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/coin"
	"github.com/smallbiznis/coinflow/internal/events"
	"github.com/smallbiznis/coinflow/internal/invoice/domain"
	"github.com/smallbiznis/coinflow/internal/money"
	"github.com/smallbiznis/coinflow/internal/observability/metrics"
	storedomain "github.com/smallbiznis/coinflow/internal/store/domain"
	walletdomain "github.com/smallbiznis/coinflow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Wallets    walletdomain.Service
	Stores     storedomain.Service
	Coins      *coin.Registry
	Hub        *events.Hub
	Publishers []events.Publisher `optional:"true"`
	Observers  []domain.Observer  `group:"invoice.observers"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clk        clock.Clock
	repo       domain.Repository
	wallets    walletdomain.Service
	stores     storedomain.Service
	coins      *coin.Registry
	hub        *events.Hub
	publishers []events.Publisher
	observers  []domain.Observer
	locks      *lockArena
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clk:        p.Clock,
		repo:       p.Repo,
		wallets:    p.Wallets,
		stores:     p.Stores,
		coins:      p.Coins,
		hub:        p.Hub,
		publishers: p.Publishers,
		observers:  p.Observers,
		locks:      newLockArena(),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Invoice, []domain.PaymentMethod, error) {
	if !req.Price.IsPositive() {
		return nil, nil, domain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, nil, domain.ErrInvalidCurrency
	}

	settings, err := s.stores.Checkout(ctx, req.StoreID)
	if err != nil {
		return nil, nil, err
	}
	wallets, err := s.wallets.ListByStore(ctx, req.StoreID)
	if err != nil {
		return nil, nil, err
	}
	if len(wallets) == 0 {
		return nil, nil, domain.ErrNoWallets
	}

	now := s.clk.Now().UTC()
	invoice := &domain.Invoice{
		ID:                s.genID.Generate(),
		StoreID:           snowflake.ID(req.StoreID),
		Price:             req.Price,
		Currency:          currency,
		Status:            domain.StatusPending,
		ExceptionStatus:   domain.ExceptionNone,
		ExpirationMinutes: settings.ExpirationMinutes,
		ExpiresAt:         now.Add(time.Duration(settings.ExpirationMinutes) * time.Minute),
		Promocode:         strings.TrimSpace(req.Promocode),
		OrderID:           strings.TrimSpace(req.OrderID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	discounts, err := s.repo.ListEligibleDiscounts(ctx, s.db, req.StoreID, now)
	if err != nil {
		return nil, nil, err
	}

	selected := selectWallets(wallets, settings.RandomizeWalletSelection)

	// Fan-out: every wallet builds its methods concurrently, failures are
	// swallowed per-wallet so one dead daemon cannot abort the invoice.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		methods []domain.PaymentMethod
	)
	for i := range selected {
		wallet := selected[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			built, err := s.buildMethods(ctx, invoice, &wallet, settings, discounts)
			if err != nil {
				metrics.Core().IncMethodFailure(wallet.Currency)
				s.log.Warn("payment method creation failed",
					zap.String("invoice_id", invoice.ID.String()),
					zap.String("currency", wallet.Currency),
					zap.Error(err))
				return
			}
			mu.Lock()
			methods = append(methods, built...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(methods) == 0 {
		// Zero payable methods is not a creation error, but it deserves a
		// louder log line than a single wallet failure.
		s.log.Error("invoice created with no payment methods",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Int("wallets", len(selected)))
	}

	products := make([]domain.InvoiceProduct, 0, len(req.Products))
	for _, line := range req.Products {
		quantity := line.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		products = append(products, domain.InvoiceProduct{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			ProductID: snowflake.ID(line.ProductID),
			Quantity:  quantity,
			CreatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CreateInvoice(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.CreateMethods(ctx, tx, methods); err != nil {
			return err
		}
		return s.repo.CreateProducts(ctx, tx, products)
	})
	if err != nil {
		return nil, nil, err
	}

	for i := range methods {
		for _, observer := range s.observers {
			observer.PostCreatePaymentMethod(ctx, invoice, &methods[i])
		}
	}

	return invoice, methods, nil
}

// buildMethods prices one wallet and mints its on-chain method, plus a
// lightning variant when both wallet and daemon support it.
func (s *Service) buildMethods(ctx context.Context, invoice *domain.Invoice, wallet *walletdomain.Wallet, settings *storedomain.CheckoutSettings, discounts []domain.Discount) ([]domain.PaymentMethod, error) {
	for _, observer := range s.observers {
		if !observer.PreCreatePaymentMethod(ctx, invoice, wallet.Currency) {
			return nil, nil
		}
	}

	data, err := s.wallets.Resolve(ctx, wallet, invoice.Currency, settings.RateRules, settings.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	discount := bestDiscount(discounts, s.clk.Now().UTC(), invoice.Promocode, data.Symbol)

	priced := invoice.Price
	var discountID *snowflake.ID
	if discount != nil {
		priced = priced.Sub(priced.Mul(discount.Percent).Div(decimal.NewFromInt(100)))
		id := discount.ID
		discountID = &id
	}

	// Underpaid tolerance shrinks only the requested address amount; the
	// invoice keeps the full expected price for accounting.
	requestFiat := priced.Sub(priced.Mul(settings.UnderpaidPercentage).Div(decimal.NewFromInt(100)))

	amount := money.Normalize(requestFiat.Div(data.Rate), data.Divisibility)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invoice: non-positive amount for %s", data.Symbol)
	}

	// Re-derive the rate so rate * amount recovers the exact requested sum
	// despite round-up normalization.
	rate := requestFiat.Div(amount)

	client, err := s.coins.Client(data.Symbol)
	if err != nil {
		return nil, err
	}

	fee := decimal.Zero
	if settings.IncludeNetworkFee {
		estimate, err := client.RecommendedFee(ctx, settings.RecommendedFeeTargetBlocks)
		if err != nil {
			s.log.Warn("fee estimate failed, continuing without",
				zap.String("currency", data.Symbol), zap.Error(err))
		} else if converted, err := s.convertFee(ctx, invoice, wallet, data, settings, estimate); err != nil {
			s.log.Warn("fee conversion failed, continuing without",
				zap.String("currency", data.Symbol), zap.Error(err))
		} else {
			fee = converted
			amount = money.Normalize(amount.Add(fee), data.Divisibility)
		}
	}

	description := "Invoice " + invoice.ID.String()
	if invoice.OrderID != "" {
		description = "Order " + invoice.OrderID
	}
	expire := int64(invoice.ExpirationMinutes) * 60

	now := s.clk.Now().UTC()
	request, err := client.AddRequest(ctx, wallet.XPub, amount, description, expire)
	if err != nil {
		return nil, err
	}

	methods := []domain.PaymentMethod{{
		ID:             s.genID.Generate(),
		InvoiceID:      invoice.ID,
		WalletID:       wallet.ID,
		Currency:       data.Symbol,
		Amount:         amount,
		Rate:           rate,
		DiscountID:     discountID,
		PaymentAddress: request.Address,
		PaymentURL:     request.URI,
		LookupKey:      request.LookupKey,
		RecommendedFee: fee,
		CreatedAt:      now,
		UpdatedAt:      now,
	}}

	if wallet.LightningEnabled {
		lightning, err := s.buildLightningMethod(ctx, invoice, wallet, client, amount, rate, discountID, description, expire)
		if err != nil {
			if !errors.Is(err, coin.ErrLightningUnsupported) {
				return nil, err
			}
		} else if lightning != nil {
			methods = append(methods, *lightning)
		}
	}

	return methods, nil
}

// convertFee expresses a daemon fee estimate in the wallet's own currency.
// Token wallets settle through their network chain's daemon, so the estimate
// comes back denominated in the network coin and must be re-priced through
// the rate engine before it can be added to the token amount.
func (s *Service) convertFee(ctx context.Context, invoice *domain.Invoice, wallet *walletdomain.Wallet, data *walletdomain.Data, settings *storedomain.CheckoutSettings, fee decimal.Decimal) (decimal.Decimal, error) {
	info, ok := coin.Lookup(data.Symbol)
	if !ok || info.TokenNetwork == "" {
		return fee, nil
	}

	networkWallet := *wallet
	networkWallet.Currency = info.TokenNetwork
	networkData, err := s.wallets.Resolve(ctx, &networkWallet, invoice.Currency, settings.RateRules, settings.DefaultCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	if !networkData.Rate.IsPositive() || !data.Rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("invoice: no usable rate to convert %s fee into %s", networkData.Symbol, data.Symbol)
	}
	// Both rates price one unit in the invoice currency, so the ratio maps
	// network-coin units onto wallet-currency units.
	return fee.Mul(networkData.Rate).Div(data.Rate), nil
}

func (s *Service) buildLightningMethod(ctx context.Context, invoice *domain.Invoice, wallet *walletdomain.Wallet, client coin.Client, amount, rate decimal.Decimal, discountID *snowflake.ID, description string, expire int64) (*domain.PaymentMethod, error) {
	nodeID, err := client.NodeID(ctx)
	if err != nil {
		return nil, err
	}
	lnInvoice, err := client.AddInvoice(ctx, wallet.XPub, amount, description, expire)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now().UTC()
	return &domain.PaymentMethod{
		ID:         s.genID.Generate(),
		InvoiceID:  invoice.ID,
		WalletID:   wallet.ID,
		Currency:   strings.ToUpper(wallet.Currency),
		Amount:     amount,
		Rate:       rate,
		DiscountID: discountID,
		PaymentURL: lnInvoice.Invoice,
		Lightning:  true,
		RHash:      lnInvoice.RHash,
		NodeID:     nodeID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Invoice, error) {
	invoice, err := s.repo.FindInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, domain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) Methods(ctx context.Context, invoiceID int64) ([]domain.PaymentMethod, error) {
	return s.repo.ListMethods(ctx, s.db, invoiceID)
}

func (s *Service) SetUserAddress(ctx context.Context, methodID int64, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.ErrMethodNotFound
	}
	method, err := s.repo.FindMethod(ctx, s.db, methodID)
	if err != nil {
		return err
	}
	if method == nil {
		return domain.ErrMethodNotFound
	}

	won, err := s.repo.ClaimUserAddress(ctx, s.db, methodID, address, s.clk.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		return domain.ErrAddressAlreadySet
	}
	return nil
}

func (s *Service) DueForExpiration(ctx context.Context, now time.Time, limit int) ([]domain.Invoice, error) {
	return s.repo.ListDueForExpiration(ctx, s.db, now, limit)
}

// selectWallets returns all wallets, or with randomize exactly one wallet per
// distinct symbol so several wallets sharing a coin never produce duplicate
// on-chain methods.
func selectWallets(wallets []walletdomain.Wallet, randomize bool) []walletdomain.Wallet {
	if !randomize {
		return wallets
	}
	bySymbol := make(map[string][]walletdomain.Wallet)
	order := make([]string, 0, len(wallets))
	for _, wallet := range wallets {
		symbol := strings.ToUpper(strings.TrimSpace(wallet.Currency))
		if _, seen := bySymbol[symbol]; !seen {
			order = append(order, symbol)
		}
		bySymbol[symbol] = append(bySymbol[symbol], wallet)
	}

	selected := make([]walletdomain.Wallet, 0, len(order))
	for _, symbol := range order {
		candidates := bySymbol[symbol]
		selected = append(selected, candidates[rand.Intn(len(candidates))])
	}
	return selected
}

// bestDiscount picks the eligible discount with the highest percent; ties go
// to the first maximum found.
func bestDiscount(discounts []domain.Discount, now time.Time, promocode, currency string) *domain.Discount {
	var best *domain.Discount
	for i := range discounts {
		candidate := &discounts[i]
		if !candidate.Eligible(now, promocode, currency) {
			continue
		}
		if best == nil || candidate.Percent.GreaterThan(best.Percent) {
			best = candidate
		}
	}
	return best
}
