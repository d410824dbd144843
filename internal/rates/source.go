package rates

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/smallbiznis/coinflow/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	// RefreshThrottle bounds how often a single source may hit the network.
	RefreshThrottle = 150 * time.Second
	// UsageTTL stops background refresh for sources nobody asked about.
	UsageTTL = 12 * time.Hour
)

// Source fetches a fresh table of pairwise quotes from one market or
// aggregator. Keys are "LEFT_RIGHT" strings.
type Source interface {
	Name() string
	FetchQuotes(ctx context.Context) (map[string]decimal.Decimal, error)
}

// cachedSource wraps a Source with the quotes cache and refresh policy.
type cachedSource struct {
	src Source
	log *zap.Logger
	clk clock.Clock

	mu          sync.Mutex
	quotes      map[string]decimal.Decimal
	lastRefresh time.Time
	lastUsed    time.Time
}

func newCachedSource(src Source, log *zap.Logger, clk clock.Clock) *cachedSource {
	return &cachedSource{
		src:      src,
		log:      log.Named("rates.source").With(zap.String("source", src.Name())),
		clk:      clk,
		quotes:   map[string]decimal.Decimal{},
		lastUsed: clk.Now(),
	}
}

// Quote returns the cached rate for pair, refreshing first when the cache is
// older than the throttle window. A missing quote is not an error; the rule
// engine treats it as an unresolved branch.
func (c *cachedSource) Quote(ctx context.Context, pair Pair) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.lastUsed = now
	if c.lastRefresh.IsZero() || now.Sub(c.lastRefresh) >= RefreshThrottle {
		c.refreshLocked(ctx, now)
	}

	quote, ok := c.quotes[pair.String()]
	return quote, ok
}

// maybeRefresh is the background-loop entry. It skips sources that have not
// been used within UsageTTL and respects the refresh throttle.
func (c *cachedSource) maybeRefresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	if now.Sub(c.lastUsed) > UsageTTL {
		return
	}
	if !c.lastRefresh.IsZero() && now.Sub(c.lastRefresh) < RefreshThrottle {
		return
	}
	c.refreshLocked(ctx, now)
}

func (c *cachedSource) refreshLocked(ctx context.Context, now time.Time) {
	c.lastRefresh = now

	fetched, err := c.src.FetchQuotes(ctx)
	if err != nil {
		// Keep the previous cache; stale beats absent.
		metrics.Core().IncSourceRefresh(c.src.Name(), metrics.RefreshResultError)
		c.log.Warn("quote refresh failed", zap.Error(err))
		return
	}

	c.quotes = withInverses(fetched)
	metrics.Core().IncSourceRefresh(c.src.Name(), metrics.RefreshResultOK)
	c.log.Debug("quotes refreshed", zap.Int("pairs", len(c.quotes)))
}

// withInverses derives LEFT_RIGHT -> RIGHT_LEFT for every well-formed pair.
// Keys with more than one underscore are dropped.
func withInverses(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in)*2)
	for key, quote := range in {
		if strings.Count(key, "_") != 1 {
			continue
		}
		out[key] = quote
	}
	for key, quote := range in {
		if strings.Count(key, "_") != 1 || quote.IsZero() {
			continue
		}
		pair, err := ParsePair(key)
		if err != nil {
			continue
		}
		inverse := pair.Inverse().String()
		if _, exists := out[inverse]; !exists {
			out[inverse] = decimal.NewFromInt(1).Div(quote)
		}
	}
	return out
}
