package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/coinflow/internal/config"
	"github.com/smallbiznis/coinflow/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideLoggerConfig,
		logger.New,
	),
	fx.Invoke(serveMetrics),
)

func provideLoggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.AppName,
		Environment:         cfg.Environment,
		Version:             cfg.AppVersion,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		IncludeCaller:       true,
		IncludeStackOnError: isDevEnv(cfg.Environment),
	}
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// serveMetrics exposes the Prometheus scrape endpoint on its own listener so
// the settlement core stays observable without a public API surface.
func serveMetrics(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.MetricsAddr)
	if addr == "" || strings.EqualFold(addr, "off") {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics listener stopped", zap.Error(err))
				}
			}()
			log.Info("metrics endpoint listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
