package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// coingeckoIDs maps currency symbols to CoinGecko asset ids.
var coingeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"BCH":   "bitcoin-cash",
	"LTC":   "litecoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"MATIC": "matic-network",
	"TRX":   "tron",
	"XMR":   "monero",
	"GRS":   "groestlcoin",
}

// Coingecko is the aggregator source producing a crypto x fiat quote matrix.
type Coingecko struct {
	baseURL string
	coins   []string
	fiats   []string
	http    *retryablehttp.Client
}

func NewCoingecko(baseURL string, coins, fiats []string, client *retryablehttp.Client) *Coingecko {
	return &Coingecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		coins:   coins,
		fiats:   fiats,
		http:    client,
	}
}

func (c *Coingecko) Name() string { return "coingecko" }

func (c *Coingecko) FetchQuotes(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(c.coins))
	symbolsByID := make(map[string]string, len(c.coins))
	for _, symbol := range c.coins {
		id, ok := coingeckoIDs[strings.ToUpper(symbol)]
		if !ok {
			continue
		}
		ids = append(ids, id)
		symbolsByID[id] = strings.ToUpper(symbol)
	}
	if len(ids) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", strings.ToLower(strings.Join(c.fiats, ",")))
	endpoint := fmt.Sprintf("%s/api/v3/simple/price?%s", c.baseURL, query.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}

	quotes := make(map[string]decimal.Decimal, len(payload)*len(c.fiats))
	for id, fiatQuotes := range payload {
		symbol, ok := symbolsByID[id]
		if !ok {
			continue
		}
		for fiat, quote := range fiatQuotes {
			quotes[symbol+"_"+strings.ToUpper(fiat)] = quote
		}
	}
	return quotes, nil
}
