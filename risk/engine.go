// Package risk turns a raw trade idea (entry, stop, side) into a bounded,
// auditable order plan and enforces per-trade and aggregate exposure caps.
package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradecore/market"
)

// Limits are the engine's risk parameters. Percentages are expressed as
// whole percents (1.0 means 1%).
type Limits struct {
	RiskPerTradePct   float64
	MaxTotalRiskPct   float64
	MaxConcurrent     int
	MinNotional       float64
	MaxLeverage       float64
	QuantityPrecision int
}

// DefaultLimits returns conservative retail defaults.
func DefaultLimits() Limits {
	return Limits{
		RiskPerTradePct:   1.0,
		MaxTotalRiskPct:   3.0,
		MaxConcurrent:     3,
		MinNotional:       10,
		MaxLeverage:       5,
		QuantityPrecision: 4,
	}
}

// TargetMultiples is the default three-rung ladder in risk units.
var TargetMultiples = [3]float64{1.0, 1.8, 3.0}

// ladderStretchMax caps how far volatility may stretch rungs two and three.
const ladderStretchMax = 1.5

// PlanRequest is a trade idea plus the account context needed to size it.
type PlanRequest struct {
	Entry  float64
	Stop   float64
	Side   market.Side
	Equity float64

	// Block groups this trade for exposure capping, usually the quote
	// currency or a symbol group.
	Block string

	// LeverageHint is the requested leverage; zero means unlevered.
	LeverageHint float64

	// ATRHint stretches the outer target rungs when set; zero disables.
	ATRHint float64
}

// Plan is a sized order proposal. Derived deterministically from a request
// and immutable once returned.
type Plan struct {
	Quantity float64
	Entry    float64
	Stop     float64
	Target1  float64
	Target2  float64
	Target3  float64

	RiskUnit float64
	RiskPct  float64
	Notional float64
	Leverage float64

	Warnings []string
}

// Rejection is a first-class sizing outcome, not an error. Frequent and
// expected: exposure caps and notional floors reject trades by design.
type Rejection struct {
	Code   string
	Reason string
}

const (
	RejectInvalid  = "INVALID_REQUEST"
	RejectExposure = "EXPOSURE_CAP"
)

// Engine sizes trades against Limits and an ExposureBook.
type Engine struct {
	limits Limits
	book   *ExposureBook
}

func NewEngine(limits Limits, book *ExposureBook) *Engine {
	return &Engine{limits: limits, book: book}
}

func (e *Engine) Limits() Limits      { return e.limits }
func (e *Engine) Book() *ExposureBook { return e.book }

// Plan sizes a trade idea. The sizing law is
//
//	riskBudget = equity * riskPerTradePct
//	quantity   = riskBudget / |entry - stop|
//
// with quantity floored to a fixed precision so rounding never over-risks.
// If the resulting order falls below the venue minimum notional, quantity is
// scaled up to meet it and a warning is attached: that path deliberately
// overrides the risk budget.
func (e *Engine) Plan(req PlanRequest) (Plan, *Rejection) {
	if req.Side != market.SideBuy && req.Side != market.SideSell {
		return Plan{}, &Rejection{Code: RejectInvalid, Reason: fmt.Sprintf("side %q is not tradable", req.Side)}
	}
	if req.Entry <= 0 || req.Stop <= 0 {
		return Plan{}, &Rejection{Code: RejectInvalid, Reason: "entry and stop must be positive"}
	}
	riskUnit := math.Abs(req.Entry - req.Stop)
	if riskUnit == 0 {
		return Plan{}, &Rejection{Code: RejectInvalid, Reason: "entry equals stop"}
	}
	if req.Equity <= 0 {
		return Plan{}, &Rejection{Code: RejectInvalid, Reason: "equity must be positive"}
	}

	plan := Plan{Entry: req.Entry, Stop: req.Stop, RiskUnit: riskUnit}

	riskBudget := req.Equity * e.limits.RiskPerTradePct / 100
	qty := floorTo(riskBudget/riskUnit, e.limits.QuantityPrecision)

	if qty*req.Entry < e.limits.MinNotional {
		scaled := ceilTo(e.limits.MinNotional/req.Entry, e.limits.QuantityPrecision)
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"quantity %g scaled to %g to meet minimum notional %g; actual risk exceeds budget",
			qty, scaled, e.limits.MinNotional))
		qty = scaled
	}
	plan.Quantity = qty
	plan.Notional = qty * req.Entry
	plan.RiskPct = qty * riskUnit / req.Equity * 100

	stretch := 1.0
	if req.ATRHint > 0 {
		// Stretch grows with the volatility-to-price ratio, capped at 1.5x.
		stretch = math.Min(ladderStretchMax, 1+10*req.ATRHint/req.Entry)
	}
	dir := req.Side.Sign()
	plan.Target1 = req.Entry + dir*TargetMultiples[0]*riskUnit
	plan.Target2 = req.Entry + dir*TargetMultiples[1]*stretch*riskUnit
	plan.Target3 = req.Entry + dir*TargetMultiples[2]*stretch*riskUnit

	if req.LeverageHint > 0 {
		lev := req.LeverageHint
		switch {
		case lev < 1:
			lev = 1
		case lev > e.limits.MaxLeverage:
			lev = e.limits.MaxLeverage
		}
		if lev != req.LeverageHint {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf(
				"leverage %gx clipped to %gx", req.LeverageHint, lev))
		}
		plan.Leverage = lev
	}

	if e.book != nil && !e.book.CanAdd(req.Block, plan.RiskPct) {
		return Plan{}, &Rejection{
			Code:   RejectExposure,
			Reason: fmt.Sprintf("block %q cannot take another %.2f%% risk", req.Block, plan.RiskPct),
		}
	}

	return plan, nil
}

func floorTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(v*p) / p
}

func ceilTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Ceil(v*p) / p
}
