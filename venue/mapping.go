package venue

import (
	"strings"

	"github.com/rustyeddy/tradecore/market"
)

// Mapping translates a canonical BASE/QUOTE symbol to a venue's native
// spelling. Mappings are pure and applied before every venue call.
type Mapping func(market.Symbol) string

// ConcatMapping joins base and quote with no separator, substituting quote
// aliases first. Venues that only quote in USDT pass {"USD": "USDT"} so
// BTC/USD becomes BTCUSDT.
func ConcatMapping(quoteAlias map[string]string) Mapping {
	return func(sym market.Symbol) string {
		quote := sym.Quote()
		if alias, ok := quoteAlias[quote]; ok {
			quote = alias
		}
		return sym.Base() + quote
	}
}

// UnderscoreMapping joins base and quote with an underscore (OANDA style):
// EUR/USD becomes EUR_USD.
func UnderscoreMapping() Mapping {
	return func(sym market.Symbol) string {
		return strings.ReplaceAll(string(sym), "/", "_")
	}
}

// IdentityMapping keeps the canonical form.
func IdentityMapping() Mapping {
	return func(sym market.Symbol) string { return string(sym) }
}
