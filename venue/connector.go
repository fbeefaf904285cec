// Package venue defines the capability contract every trading backend
// implements: crypto spot/futures exchanges, FX brokers and the in-memory
// paper venue. Callers hold the Connector interface; there are no optional
// methods to probe for.
package venue

import (
	"context"
	"time"

	"github.com/rustyeddy/tradecore/market"
)

// Connector is the per-venue adapter interface. Implementations translate
// canonical symbols to their native spelling before every call and return
// errors from the taxonomy in errors.go so the router can classify them.
type Connector interface {
	Name() string

	// FetchBars returns up to limit bars, oldest first. Fewer bars than
	// requested, or none at all, is a valid result.
	FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error)

	// FetchTicker returns the last traded price for a symbol.
	FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error)

	// FetchBalance returns free equity per asset.
	FetchBalance(ctx context.Context) (Balance, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (OrderFill, error)
	CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error
}

// Balance maps asset code to free equity in that asset.
type Balance map[string]float64

// Total sums balances converted at the given prices (asset -> price in the
// account currency). Assets without a price are counted at face value only
// when they match the account currency.
func (b Balance) Total(account string, prices map[string]float64) float64 {
	var total float64
	for asset, amt := range b {
		if asset == account {
			total += amt
			continue
		}
		if px, ok := prices[asset]; ok {
			total += amt * px
		}
	}
	return total
}

// OrderRequest is a market order. Exactly one of Quantity (base units) or
// Notional (quote units) is set; the router resolves notional to quantity
// before the request reaches a connector.
type OrderRequest struct {
	Symbol   market.Symbol
	Side     market.Side
	Quantity float64
	Notional float64
	Stop     *float64
	Target   *float64
}

// OrderFill is the structured result of an accepted order.
type OrderFill struct {
	OrderID  string
	Venue    string
	Symbol   market.Symbol
	Side     market.Side
	Quantity float64
	Price    float64
	Time     time.Time
}
