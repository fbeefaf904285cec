package venue

import (
	"github.com/shopspring/decimal"
)

// SymbolRule carries a venue's declared order filters for one symbol:
// quantity step size, price precision and minimum order notional.
type SymbolRule struct {
	QuantityStep   float64
	PricePrecision int32
	MinNotional    float64
}

// DefaultRule is used when a venue declares no filters for a symbol.
var DefaultRule = SymbolRule{QuantityStep: 0.0001, PricePrecision: 2, MinNotional: 10}

// FloorQuantity floors qty to the rule's step size. Flooring (never
// rounding) keeps the order inside the risk budget that produced it.
func (r SymbolRule) FloorQuantity(qty float64) float64 {
	if r.QuantityStep <= 0 || qty <= 0 {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	step := decimal.NewFromFloat(r.QuantityStep)
	floored := q.Div(step).Floor().Mul(step)
	f, _ := floored.Float64()
	return f
}

// MeetsMinNotional reports whether qty at price clears the venue's
// minimum order value.
func (r SymbolRule) MeetsMinNotional(qty, price float64) bool {
	if r.MinNotional <= 0 {
		return true
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	return notional.GreaterThanOrEqual(decimal.NewFromFloat(r.MinNotional))
}

// FormatPrice rounds price to the rule's declared precision.
func (r SymbolRule) FormatPrice(price float64) float64 {
	f, _ := decimal.NewFromFloat(price).Round(r.PricePrecision).Float64()
	return f
}
