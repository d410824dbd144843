package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/coinflow/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	name   string
	quotes map[string]decimal.Decimal
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchQuotes(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.quotes, nil
}

func newTestEngine(sources ...Source) *Engine {
	registry := NewRegistry(zap.NewNop(), clock.NewFakeClock(time.Now()), sources...)
	return NewEngine(registry, zap.NewNop())
}

func q(raw string) decimal.Decimal { return decimal.RequireFromString(raw) }

func TestResolve_ExactPair(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name:   "coingecko",
		quotes: map[string]decimal.Decimal{"BTC_USD": q("50000")},
	})

	rate, used, err := engine.Resolve(context.Background(), "BTC_USD = coingecko(BTC_USD)", NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("50000")))
	assert.Equal(t, Pair{"BTC", "USD"}, used)
}

func TestResolve_UnderscoredSourceName(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name:   "primary_exchange",
		quotes: map[string]decimal.Decimal{"BTC_USD": q("50000")},
	})

	rate, used, err := engine.Resolve(context.Background(), "X_X = primary_exchange(X_X)", NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("50000")))
	assert.Equal(t, Pair{"BTC", "USD"}, used)
}

func TestResolve_InversePair(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name:   "coingecko",
		quotes: map[string]decimal.Decimal{"BTC_USD": q("50000")},
	})

	ruleSet := "BTC_USD = coingecko(BTC_USD)"
	forward, _, err := engine.Resolve(context.Background(), ruleSet, NewPair("BTC", "USD"))
	require.NoError(t, err)
	backward, used, err := engine.Resolve(context.Background(), ruleSet, NewPair("USD", "BTC"))
	require.NoError(t, err)

	one := decimal.NewFromInt(1)
	assert.True(t, backward.Equal(one.Div(forward)), "inverse law broken: %s vs 1/%s", backward, forward)
	assert.Equal(t, Pair{"BTC", "USD"}, used)
}

func TestResolve_WildcardPriority(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name: "coingecko",
		quotes: map[string]decimal.Decimal{
			"BTC_USD": q("50000"),
			"LTC_USD": q("80"),
		},
	})

	// Exact beats wildcard regardless of rule order.
	ruleSet := "X_X = coingecko(X_X)\nBTC_USD = 42"
	rate, _, err := engine.Resolve(context.Background(), ruleSet, NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("42")))

	// Unpinned pair falls through to the generic rule with substitution.
	rate, used, err := engine.Resolve(context.Background(), ruleSet, NewPair("LTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("80")))
	assert.Equal(t, Pair{"LTC", "USD"}, used)
}

func TestResolve_SameCurrencyIsOne(t *testing.T) {
	engine := newTestEngine(&stubSource{name: "coingecko", quotes: map[string]decimal.Decimal{}})

	rate, _, err := engine.Resolve(context.Background(), "X_X = coingecko(X_X)", NewPair("USD", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestResolve_RecursionDepthCeiling(t *testing.T) {
	engine := newTestEngine()

	// No registered source named "self", so the call recurses back into the
	// rule-set forever; the depth ceiling must cut it off.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := engine.Resolve(context.Background(), "X_X = self(X_X)", NewPair("BTC", "USD"))
		assert.ErrorIs(t, err, ErrNoRate)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cyclic rule-set did not terminate")
	}
}

func TestResolve_MeanIgnoresFailedBranches(t *testing.T) {
	engine := newTestEngine(
		&stubSource{name: "coingecko", quotes: map[string]decimal.Decimal{"BTC_USD": q("50000")}},
		&stubSource{name: "binance", err: errors.New("down")},
	)

	rate, _, err := engine.Resolve(context.Background(),
		"BTC_USD = mean(coingecko(BTC_USD), binance(BTC_USD))", NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("50000")))
}

func TestResolve_MeanAllFailed(t *testing.T) {
	engine := newTestEngine(&stubSource{name: "binance", err: errors.New("down")})

	_, _, err := engine.Resolve(context.Background(),
		"BTC_USD = mean(binance(BTC_USD), binance(BTC_EUR))", NewPair("BTC", "USD"))
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestResolve_Median(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name: "coingecko",
		quotes: map[string]decimal.Decimal{
			"BTC_USD": q("50000"),
			"BTC_EUR": q("46000"),
		},
	})

	rate, _, err := engine.Resolve(context.Background(),
		"BTC_USD = median(coingecko(BTC_USD), coingecko(BTC_EUR), 60000)", NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("50000")))
}

func TestResolve_NormalizeRoundsUp(t *testing.T) {
	engine := newTestEngine()

	rate, _, err := engine.Resolve(context.Background(),
		"BTC_USD = normalize(0.0010000001, 8)", NewPair("BTC", "USD"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("0.00100001")))
}

func TestResolve_ArithmeticAndRuleChains(t *testing.T) {
	engine := newTestEngine(&stubSource{
		name:   "coingecko",
		quotes: map[string]decimal.Decimal{"BTC_USD": q("100")},
	})

	// EUR rate derived from the USD rule through a nested pair reference.
	ruleSet := "BTC_USD = coingecko(BTC_USD)\nBTC_EUR = BTC_USD * 0.9"
	rate, _, err := engine.Resolve(context.Background(), ruleSet, NewPair("BTC", "EUR"))
	require.NoError(t, err)
	assert.True(t, rate.Equal(q("90")))
}

func TestResolve_DivisionByZero(t *testing.T) {
	engine := newTestEngine()

	_, _, err := engine.Resolve(context.Background(), "BTC_USD = 1 / 0", NewPair("BTC", "USD"))
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestResolve_NoMatch(t *testing.T) {
	engine := newTestEngine()

	_, _, err := engine.Resolve(context.Background(), "BTC_USD = 1", NewPair("LTC", "EUR"))
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestResolve_MalformedRuleSet(t *testing.T) {
	engine := newTestEngine()

	_, _, err := engine.Resolve(context.Background(), "garbage", NewPair("BTC", "USD"))
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestRulesFor_Assembly(t *testing.T) {
	assert.Equal(t, "BTC_X = coingecko(BTC_X)\nX_X = coingecko(X_X)", RulesFor("BTC", ""))
	assert.Equal(t, "BTC_X = coingecko(BTC_X)\nBTC_USD = 42", RulesFor("btc", "BTC_USD = 42"))
	assert.Equal(t, DefaultRuleSet, RulesFor("ZZZ", ""))
}
