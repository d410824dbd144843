package rates

import (
	"context"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rates",
	fx.Provide(NewRegistryFromConfig),
	fx.Provide(NewEngine),
	fx.Invoke(RunRegistry),
)

func NewRegistryFromConfig(cfg config.Config, log *zap.Logger, clk clock.Clock) *Registry {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = nil

	return NewRegistry(log, clk,
		NewCoingecko(cfg.CoingeckoURL, cfg.ExchangeCoins, cfg.ExchangeFiats, client),
		NewBinance(cfg.BinanceURL, client),
	)
}

func RunRegistry(lc fx.Lifecycle, registry *Registry) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go registry.Run(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
