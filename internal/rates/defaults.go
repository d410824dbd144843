package rates

import "strings"

// DefaultRuleSet delegates every pair to the aggregator exchange. It is used
// when a store has no custom checkout rate rules.
const DefaultRuleSet = "X_X = coingecko(X_X)"

// assetDefaults are per-asset default rules concatenated ahead of any store
// rules, so a store override only wins when it matches a more specific
// pattern than the default.
var assetDefaults = map[string]string{
	"BTC":   "BTC_X = coingecko(BTC_X)",
	"BCH":   "BCH_X = coingecko(BCH_X)",
	"LTC":   "LTC_X = coingecko(LTC_X)",
	"ETH":   "ETH_X = coingecko(ETH_X)",
	"BNB":   "BNB_X = coingecko(BNB_X)",
	"MATIC": "MATIC_X = coingecko(MATIC_X)",
	"TRX":   "TRX_X = coingecko(TRX_X)",
	"XMR":   "XMR_X = coingecko(XMR_X)",
	"GRS":   "GRS_X = mean(coingecko(GRS_X), binance(GRS_X))",
}

// RulesFor assembles the effective rule-set for an asset: the hard-coded
// asset default first, then the store's custom rules or the global default.
func RulesFor(symbol, custom string) string {
	parts := make([]string, 0, 2)
	if rule, ok := assetDefaults[strings.ToUpper(strings.TrimSpace(symbol))]; ok {
		parts = append(parts, rule)
	}
	custom = strings.TrimSpace(custom)
	if custom != "" {
		parts = append(parts, custom)
	} else {
		parts = append(parts, DefaultRuleSet)
	}
	return strings.Join(parts, "\n")
}
