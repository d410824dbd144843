package coin

import "strings"

// Info describes the fixed properties of a supported currency.
type Info struct {
	Symbol       string
	DisplayName  string
	Divisibility int32
	// TokenNetwork is set for contract tokens that settle on another chain's
	// daemon (the wallet carries the contract address).
	TokenNetwork string
}

var currencies = map[string]Info{
	"btc":   {Symbol: "BTC", DisplayName: "Bitcoin", Divisibility: 8},
	"bch":   {Symbol: "BCH", DisplayName: "Bitcoin Cash", Divisibility: 8},
	"ltc":   {Symbol: "LTC", DisplayName: "Litecoin", Divisibility: 8},
	"grs":   {Symbol: "GRS", DisplayName: "Groestlcoin", Divisibility: 8},
	"eth":   {Symbol: "ETH", DisplayName: "Ethereum", Divisibility: 18},
	"bnb":   {Symbol: "BNB", DisplayName: "BNB", Divisibility: 18},
	"matic": {Symbol: "MATIC", DisplayName: "Polygon", Divisibility: 18},
	"trx":   {Symbol: "TRX", DisplayName: "Tron", Divisibility: 6},
	"xmr":   {Symbol: "XMR", DisplayName: "Monero", Divisibility: 12},
	"usdt":  {Symbol: "USDT", DisplayName: "Tether", Divisibility: 6, TokenNetwork: "eth"},
}

// Lookup returns the currency table entry for code (case-insensitive).
func Lookup(code string) (Info, bool) {
	info, ok := currencies[strings.ToLower(strings.TrimSpace(code))]
	return info, ok
}

// Divisibility returns the decimal places of code, defaulting to 8 for
// unknown currencies so amounts are never truncated to integers.
func Divisibility(code string) int32 {
	if info, ok := Lookup(code); ok {
		return info.Divisibility
	}
	return 8
}
