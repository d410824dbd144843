package rates

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"go.uber.org/zap"
)

// Registry owns the exchange sources for the process. It is constructed once
// at the composition root and handed to the rate engine; there is no ambient
// global source state.
type Registry struct {
	log     *zap.Logger
	clk     clock.Clock
	sources map[string]*cachedSource
}

func NewRegistry(log *zap.Logger, clk clock.Clock, sources ...Source) *Registry {
	registry := &Registry{
		log:     log.Named("rates.registry"),
		clk:     clk,
		sources: map[string]*cachedSource{},
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(src.Name()))
		if name == "" {
			continue
		}
		registry.sources[name] = newCachedSource(src, log, clk)
	}
	return registry
}

func (r *Registry) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Quote looks up a live rate from the named source's cache.
func (r *Registry) Quote(ctx context.Context, name string, pair Pair) (decimal.Decimal, bool) {
	if r == nil {
		return decimal.Zero, false
	}
	source, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return decimal.Zero, false
	}
	return source.Quote(ctx, pair)
}

// Run refreshes recently-used sources until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(RefreshThrottle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, source := range r.sources {
				source.maybeRefresh(ctx)
			}
		}
	}
}
