package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// binanceQuoteAssets are the quote suffixes recognized in ticker symbols,
// checked in order; the first match wins.
var binanceQuoteAssets = []string{"USDT", "BUSD", "BTC", "ETH", "BNB"}

// binanceAliases folds stablecoin quote assets into their fiat equivalents.
var binanceAliases = map[string]string{
	"USDT": "USD",
	"BUSD": "USD",
}

// Binance is a single-market source over the public ticker endpoint.
type Binance struct {
	baseURL string
	http    *retryablehttp.Client
}

func NewBinance(baseURL string, client *retryablehttp.Client) *Binance {
	return &Binance{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) FetchQuotes(ctx context.Context) (map[string]decimal.Decimal, error) {
	endpoint := b.baseURL + "/api/v3/ticker/price"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance: unexpected status %d", resp.StatusCode)
	}

	var tickers []struct {
		Symbol string          `json:"symbol"`
		Price  decimal.Decimal `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("binance: decode: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(tickers))
	for _, ticker := range tickers {
		base, quote, ok := splitBinanceSymbol(ticker.Symbol)
		if !ok || ticker.Price.IsZero() {
			continue
		}
		key := base + "_" + quote
		if _, exists := quotes[key]; !exists {
			quotes[key] = ticker.Price
		}
	}
	return quotes, nil
}

func splitBinanceSymbol(symbol string) (base, quote string, ok bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, asset := range binanceQuoteAssets {
		if !strings.HasSuffix(symbol, asset) {
			continue
		}
		base = strings.TrimSuffix(symbol, asset)
		if base == "" {
			return "", "", false
		}
		quote = asset
		if alias, found := binanceAliases[asset]; found {
			quote = alias
		}
		return base, quote, true
	}
	return "", "", false
}
