// Package paper is the in-memory venue of last resort. It fills every
// order at the last cached price and serves bars from a seeded window, so
// the trading loop keeps running when every live venue is down or
// unauthenticated.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/venue"
)

type barKey struct {
	sym market.Symbol
	tf  string
}

// Venue wraps the simulated desk behind the Connector contract. Ticks and
// bars must be seeded from upstream data; the venue itself never reaches
// the network.
type Venue struct {
	desk  *sim.Desk
	ticks *market.TickStore

	mu   sync.RWMutex
	bars map[barKey][]market.Bar
}

func New(desk *sim.Desk, ticks *market.TickStore) *Venue {
	return &Venue{
		desk:  desk,
		ticks: ticks,
		bars:  make(map[barKey][]market.Bar),
	}
}

func (v *Venue) Name() string { return "paper" }

// SeedBars caches a bar window fetched from a live venue so later reads
// can be served locally.
func (v *Venue) SeedBars(sym market.Symbol, tf market.Timeframe, bars []market.Bar) {
	v.mu.Lock()
	defer v.mu.Unlock()

	window := make([]market.Bar, len(bars))
	copy(window, bars)
	v.bars[barKey{sym: sym, tf: tf.Key}] = window
}

// SeedTick records a last price so paper orders have a fill price.
func (v *Venue) SeedTick(t market.Tick) {
	v.ticks.Set(t)
}

func (v *Venue) FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	window := v.bars[barKey{sym: sym, tf: tf.Key}]
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]market.Bar, len(window))
	copy(out, window)
	return out, nil
}

func (v *Venue) FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error) {
	return v.ticks.Get(sym)
}

func (v *Venue) FetchBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{"USD": v.desk.Balance()}, nil
}

func (v *Venue) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderFill, error) {
	tick, err := v.ticks.Get(req.Symbol)
	if err != nil {
		return venue.OrderFill{}, fmt.Errorf("paper order %s: %w", req.Symbol, err)
	}

	var stop, target float64
	if req.Stop != nil {
		stop = *req.Stop
	}
	if req.Target != nil {
		target = *req.Target
	}

	now := time.Now().UTC()
	pos := v.desk.Open(req.Symbol, req.Side, req.Quantity, tick.Price, stop, target, now)

	return venue.OrderFill{
		OrderID:  pos.ID,
		Venue:    v.Name(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    tick.Price,
		Time:     now,
	}, nil
}

// CancelOrder is a no-op: paper market orders fill instantly, so there is
// never a resting order to cancel.
func (v *Venue) CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error {
	return nil
}

// Desk exposes the underlying simulated desk for mark-to-market sweeps.
func (v *Venue) Desk() *sim.Desk { return v.desk }
