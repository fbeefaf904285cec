// Package router exposes venue-agnostic operations over a ranked list of
// connectors per logical market. Transient venue failures advance to the
// next fallback; permanent ones surface immediately. Fallback attempts are
// strictly sequential so an order can never fan out to two venues.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/metrics"
	"github.com/rustyeddy/tradecore/venue"
)

// Market is one logical market: an ordered primary + fallback connector
// list plus the per-symbol order filters declared by its venues.
type Market struct {
	Name       string
	Connectors []venue.Connector
	Rules      map[market.Symbol]venue.SymbolRule
}

func (m *Market) rule(sym market.Symbol) venue.SymbolRule {
	if r, ok := m.Rules[sym]; ok {
		return r
	}
	return venue.DefaultRule
}

// ErrExhausted marks a walk that ran out of venues on transient failures.
// Read paths convert it to an explicit empty result.
var ErrExhausted = errors.New("all venues exhausted")

// OrderResult is the outcome of PlaceMarketOrder. Writes never panic their
// way out of the router: an exhausted fallback list yields OK=false.
type OrderResult struct {
	OK    bool
	Venue string
	Fill  venue.OrderFill
	Err   error
}

// Snapshot is the venue-agnostic account view.
type Snapshot struct {
	Venue         string
	EquityByAsset venue.Balance
}

// Config tunes the router's ambient behavior.
type Config struct {
	// CallTimeout bounds each individual venue call so a hung connector
	// cannot stall the polling loop.
	CallTimeout time.Duration
	// VenueRate is the per-venue request rate (requests per second).
	VenueRate  float64
	VenueBurst int
}

func DefaultConfig() Config {
	return Config{
		CallTimeout: 15 * time.Second,
		VenueRate:   8,
		VenueBurst:  4,
	}
}

type Router struct {
	cfg      Config
	log      zerolog.Logger
	markets  map[string]*Market
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rng      *rand.Rand
}

func New(cfg Config, log zerolog.Logger, markets ...*Market) *Router {
	r := &Router{
		cfg:      cfg,
		log:      log,
		markets:  make(map[string]*Market, len(markets)),
		limiters: make(map[string]*rate.Limiter),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, m := range markets {
		r.markets[m.Name] = m
	}
	return r
}

// FetchBars walks the market's connectors until one returns data. All
// connectors exhausted is not an error: the caller gets an empty series
// and must treat it as "no data available this cycle".
func (r *Router) FetchBars(ctx context.Context, marketName string, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	m, err := r.market(marketName)
	if err != nil {
		return nil, err
	}

	var bars []market.Bar
	err = r.walk(ctx, m, "fetch_bars", func(ctx context.Context, c venue.Connector) error {
		var err error
		bars, err = c.FetchBars(ctx, sym, tf, limit)
		if err == nil {
			metrics.BarsFetched.WithLabelValues(c.Name()).Inc()
		}
		return err
	})
	if errors.Is(err, ErrExhausted) {
		// No data available is a valid outcome, not a crash signal.
		r.log.Warn().Str("market", marketName).Str("symbol", sym.String()).
			Str("timeframe", tf.Key).Msg("no venue served bars this cycle")
		return []market.Bar{}, nil
	}
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// FetchTicker returns the last traded price from the first venue that has one.
func (r *Router) FetchTicker(ctx context.Context, marketName string, sym market.Symbol) (market.Tick, error) {
	m, err := r.market(marketName)
	if err != nil {
		return market.Tick{}, err
	}

	var tick market.Tick
	err = r.walk(ctx, m, "fetch_ticker", func(ctx context.Context, c venue.Connector) error {
		var err error
		tick, err = c.FetchTicker(ctx, sym)
		return err
	})
	if err != nil {
		return market.Tick{}, err
	}
	if tick.Price == 0 {
		return market.Tick{}, market.ErrNoTick
	}
	return tick, nil
}

// PlaceMarketOrder resolves notional to a quantity using the venue's last
// price and declared filters, then walks the fallback list. Orders below
// the minimum notional are rejected locally, before any network call.
func (r *Router) PlaceMarketOrder(ctx context.Context, marketName string, req venue.OrderRequest) OrderResult {
	m, err := r.market(marketName)
	if err != nil {
		return OrderResult{Err: err}
	}

	var fill venue.OrderFill
	walkErr := r.walk(ctx, m, "place_order", func(ctx context.Context, c venue.Connector) error {
		resolved, err := r.resolveQuantity(ctx, c, m, req)
		if err != nil {
			return err
		}
		fill, err = c.PlaceOrder(ctx, resolved)
		if err == nil {
			metrics.OrdersPlaced.WithLabelValues(c.Name(), string(req.Side)).Inc()
		}
		return err
	})
	if walkErr != nil {
		return OrderResult{OK: false, Err: walkErr}
	}
	return OrderResult{OK: true, Venue: fill.Venue, Fill: fill}
}

// AccountSnapshot returns equity per asset from the first venue that answers.
func (r *Router) AccountSnapshot(ctx context.Context, marketName string) (Snapshot, error) {
	m, err := r.market(marketName)
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	err = r.walk(ctx, m, "account_snapshot", func(ctx context.Context, c venue.Connector) error {
		bal, err := c.FetchBalance(ctx)
		if err != nil {
			return err
		}
		snap = Snapshot{Venue: c.Name(), EquityByAsset: bal}
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Venue == "" {
		return Snapshot{}, fmt.Errorf("market %s: no venue reachable", marketName)
	}
	return snap, nil
}

// resolveQuantity converts a notional request to base quantity at the
// venue's last price, floors it to the step size and applies the minimum
// notional filter.
func (r *Router) resolveQuantity(ctx context.Context, c venue.Connector, m *Market, req venue.OrderRequest) (venue.OrderRequest, error) {
	rule := m.rule(req.Symbol)

	tick, err := c.FetchTicker(ctx, req.Symbol)
	if err != nil {
		return req, err
	}

	qty := req.Quantity
	if qty == 0 {
		if req.Notional <= 0 {
			return req, fmt.Errorf("order for %s has neither quantity nor notional: %w",
				req.Symbol, venue.ErrBelowMinNotional)
		}
		qty = req.Notional / tick.Price
		req.Notional = 0
	}

	floored := rule.FloorQuantity(qty)
	if floored <= 0 {
		return req, fmt.Errorf("quantity %g floors to zero at step %g: %w",
			qty, rule.QuantityStep, venue.ErrBelowMinNotional)
	}
	if !rule.MeetsMinNotional(floored, tick.Price) {
		return req, fmt.Errorf("%g %s at %g below minimum notional %g: %w",
			floored, req.Symbol, tick.Price, rule.MinNotional, venue.ErrBelowMinNotional)
	}

	req.Quantity = floored
	return req, nil
}

// walk tries each connector in rank order. The primary and first two
// fallbacks run in declared order; any remaining fallbacks are shuffled to
// spread load. Only transient failures advance the walk.
func (r *Router) walk(ctx context.Context, m *Market, op string, call func(context.Context, venue.Connector) error) error {
	conns := r.attemptOrder(m.Connectors)
	if len(conns) == 0 {
		return fmt.Errorf("market %s has no connectors", m.Name)
	}

	bo := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}

	for i, c := range conns {
		if err := r.limiter(c.Name()).Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
		err := call(callCtx, c)
		cancel()

		if err == nil {
			return nil
		}
		if venue.Classify(err) == venue.ClassPermanent {
			return err
		}

		metrics.VenueFallbacks.WithLabelValues(m.Name, op).Inc()
		r.log.Warn().Err(err).Str("market", m.Name).Str("venue", c.Name()).Str("op", op).
			Int("rank", i).Msg("transient venue failure, advancing to fallback")

		if i < len(conns)-1 {
			select {
			case <-time.After(bo.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("market %s: %s after %d venues: %w", m.Name, op, len(conns), ErrExhausted)
}

// attemptOrder keeps the primary and first two fallbacks in declared order
// and shuffles the rest.
func (r *Router) attemptOrder(conns []venue.Connector) []venue.Connector {
	out := make([]venue.Connector, len(conns))
	copy(out, conns)
	if len(out) > 3 {
		tail := out[3:]
		r.mu.Lock()
		r.rng.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })
		r.mu.Unlock()
	}
	return out
}

func (r *Router) limiter(venueName string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[venueName]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.cfg.VenueRate), r.cfg.VenueBurst)
		r.limiters[venueName] = l
	}
	return l
}

func (r *Router) market(name string) (*Market, error) {
	m, ok := r.markets[name]
	if !ok {
		return nil, fmt.Errorf("unknown market %q", name)
	}
	return m, nil
}

// Markets lists the configured market names.
func (r *Router) Markets() []string {
	out := make([]string, 0, len(r.markets))
	for name := range r.markets {
		out = append(out, name)
	}
	return out
}
