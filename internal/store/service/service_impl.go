package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/config"
	invoicedomain "github.com/smallbiznis/coinflow/internal/invoice/domain"
	"github.com/smallbiznis/coinflow/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Checkout *config.CheckoutConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clk      clock.Clock
	repo     domain.Repository
	checkout *config.CheckoutConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("store.service"),
		genID:    p.GenID,
		clk:      p.Clock,
		repo:     p.Repo,
		checkout: p.Checkout,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Store, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	currency := strings.ToUpper(strings.TrimSpace(req.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}

	now := s.clk.Now().UTC()
	record := &domain.Store{
		ID:              s.genID.Generate(),
		Name:            name,
		DefaultCurrency: currency,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Store, error) {
	store, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrNotFound
	}
	return store, nil
}

func (s *Service) UpdateCheckout(ctx context.Context, req domain.UpdateCheckoutRequest) (*domain.Store, error) {
	store, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.ExpirationMinutes != nil {
		store.ExpirationMinutes = *req.ExpirationMinutes
	}
	if req.UnderpaidPercentage != nil {
		if *req.UnderpaidPercentage < 0 || *req.UnderpaidPercentage >= 100 {
			return nil, domain.ErrInvalidUnderpaid
		}
		store.UnderpaidPercentage = decimal.NewFromFloat(*req.UnderpaidPercentage)
	}
	if req.TransactionSpeed != nil {
		// Confirmations are clamped at MaxConfirmations, so a higher speed
		// would park paid invoices at CONFIRMED forever.
		if *req.TransactionSpeed < 0 || *req.TransactionSpeed > invoicedomain.MaxConfirmations {
			return nil, domain.ErrInvalidSpeed
		}
		speed := *req.TransactionSpeed
		store.TransactionSpeed = &speed
	}
	if req.RandomizeWalletSelection != nil {
		store.RandomizeWalletSelection = *req.RandomizeWalletSelection
	}
	if req.IncludeNetworkFee != nil {
		store.IncludeNetworkFee = *req.IncludeNetworkFee
	}
	if req.RateRules != nil {
		store.RateRules = strings.TrimSpace(*req.RateRules)
	}
	if req.RecommendedFeeTargetBlocks != nil {
		store.RecommendedFeeTargetBlocks = *req.RecommendedFeeTargetBlocks
	}
	if req.DefaultCurrency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*req.DefaultCurrency))
		if currency != "" {
			store.DefaultCurrency = currency
		}
	}

	store.UpdatedAt = s.clk.Now().UTC()
	if err := s.repo.Update(ctx, s.db, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Service) Checkout(ctx context.Context, id int64) (*domain.CheckoutSettings, error) {
	store, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	settings := s.merge(store)
	return &settings, nil
}

// merge resolves the effective checkout policy: store columns win over the
// hot-reloaded global config, which wins over compiled defaults.
func (s *Service) merge(store *domain.Store) domain.CheckoutSettings {
	global := config.DefaultCheckoutConfig()
	if s.checkout != nil {
		global = s.checkout.Get()
	}

	settings := domain.CheckoutSettings{
		ExpirationMinutes:          global.ExpirationMinutes,
		UnderpaidPercentage:        decimal.NewFromFloat(global.UnderpaidPercentage),
		TransactionSpeed:           global.TransactionSpeed,
		RandomizeWalletSelection:   store.RandomizeWalletSelection,
		IncludeNetworkFee:          store.IncludeNetworkFee,
		RateRules:                  global.RateRules,
		RecommendedFeeTargetBlocks: global.RecommendedFeeTargetBlocks,
		DefaultCurrency:            store.DefaultCurrency,
	}

	if store.ExpirationMinutes > 0 {
		settings.ExpirationMinutes = store.ExpirationMinutes
	}
	if store.UnderpaidPercentage.IsPositive() {
		settings.UnderpaidPercentage = store.UnderpaidPercentage
	}
	if store.TransactionSpeed != nil {
		settings.TransactionSpeed = *store.TransactionSpeed
	}
	if rules := strings.TrimSpace(store.RateRules); rules != "" {
		settings.RateRules = rules
	}
	if store.RecommendedFeeTargetBlocks > 0 {
		settings.RecommendedFeeTargetBlocks = store.RecommendedFeeTargetBlocks
	}
	return settings
}
