package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/coin"
	"github.com/smallbiznis/coinflow/internal/rates"
	"github.com/smallbiznis/coinflow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Engine *rates.Engine
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clk    clock.Clock
	repo   domain.Repository
	engine *rates.Engine
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("wallet.service"),
		genID:  p.GenID,
		clk:    p.Clock,
		repo:   p.Repo,
		engine: p.Engine,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Wallet, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	xpub := strings.TrimSpace(req.XPub)
	if xpub == "" {
		return nil, domain.ErrInvalidXPub
	}

	now := s.clk.Now().UTC()
	record := &domain.Wallet{
		ID:               s.genID.Generate(),
		StoreID:          snowflake.ID(req.StoreID),
		Currency:         currency,
		XPub:             xpub,
		Contract:         strings.TrimSpace(req.Contract),
		LightningEnabled: req.LightningEnabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.AdditionalXPub != nil {
		record.AdditionalXPubData = datatypes.JSONMap(req.AdditionalXPub)
	}

	if err := s.repo.Create(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) ListByStore(ctx context.Context, storeID int64) ([]domain.Wallet, error) {
	return s.repo.ListByStore(ctx, s.db, storeID)
}

func (s *Service) Resolve(ctx context.Context, wallet *domain.Wallet, targetCurrency, rateRules, storeDefaultCurrency string) (*domain.Data, error) {
	symbol := strings.ToUpper(strings.TrimSpace(wallet.Currency))
	ruleSet := rates.RulesFor(symbol, rateRules)

	rate, ok := s.resolveRate(ctx, ruleSet, symbol, targetCurrency, storeDefaultCurrency)
	if !ok {
		// Last resort keeps invoice creation alive for exotic currencies;
		// the merchant sees the raw coin amount.
		s.log.Warn("rate fallback chain exhausted, using 1",
			zap.String("symbol", symbol),
			zap.String("target", targetCurrency))
		rate = decimal.NewFromInt(1)
	}

	return &domain.Data{
		Symbol:       symbol,
		Divisibility: coin.Divisibility(symbol),
		Rate:         rate,
	}, nil
}

// resolveRate walks the fallback chain target -> store default -> USD and
// returns the first pair the rule engine can price.
func (s *Service) resolveRate(ctx context.Context, ruleSet, symbol, target, storeDefault string) (decimal.Decimal, bool) {
	tried := make(map[string]bool, 3)
	for _, right := range []string{target, storeDefault, "USD"} {
		right = strings.ToUpper(strings.TrimSpace(right))
		if right == "" || tried[right] {
			continue
		}
		tried[right] = true

		rate, _, err := s.engine.Resolve(ctx, ruleSet, rates.NewPair(symbol, right))
		if err != nil {
			continue
		}
		if rate.IsPositive() {
			return rate, true
		}
	}
	return decimal.Zero, false
}
