package coin

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/coinflow/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("coin",
	fx.Provide(NewRegistryFromConfig),
)

func NewRegistryFromConfig(cfg config.Config, log *zap.Logger) *Registry {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 30 * time.Second
	client.Logger = nil

	return NewRegistry(buildClients(cfg.Daemons, cfg.DaemonUser, cfg.DaemonPassword, client, log))
}
