// Package bot runs the polling loop: fetch bars per timeframe, fuse a
// consensus decision, size it through the risk engine, route the order, and
// journal the result. Symbols are evaluated in parallel with a bounded
// worker pool; the shared exposure book serializes sizing.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/tradecore/config"
	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/metrics"
	"github.com/rustyeddy/tradecore/notify"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/router"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/venue"
)

// Broker is the slice of the router the loop uses. *router.Router
// satisfies it; tests substitute a stub.
type Broker interface {
	FetchBars(ctx context.Context, marketName string, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error)
	FetchTicker(ctx context.Context, marketName string, sym market.Symbol) (market.Tick, error)
	PlaceMarketOrder(ctx context.Context, marketName string, req venue.OrderRequest) router.OrderResult
	AccountSnapshot(ctx context.Context, marketName string) (router.Snapshot, error)
}

// openTrade links a desk position to its ledger row and exposure claim.
// live marks fills from a real venue, whose exits must be routed back as
// closing orders.
type openTrade struct {
	tradeID    journal.TradeID
	symbol     market.Symbol
	block      string
	riskPct    float64
	marketName string
	live       bool
}

// Bot owns one trading loop over the configured symbols.
type Bot struct {
	cfg      config.Config
	log      zerolog.Logger
	broker   Broker
	engine   *consensus.Engine
	risk     *risk.Engine
	ledger   journal.Ledger
	notifier notify.Notifier
	desk     *sim.Desk
	frames   []market.Timeframe

	mu    sync.Mutex
	open  map[string]openTrade // keyed by desk position ID
	day   int                  // UTC year-day of the current session
	clock func() time.Time
}

func New(cfg config.Config, log zerolog.Logger, broker Broker, engine *consensus.Engine,
	riskEng *risk.Engine, ledger journal.Ledger, notifier notify.Notifier, desk *sim.Desk) (*Bot, error) {

	frames, err := market.Timeframes(cfg.Timeframes)
	if err != nil {
		return nil, err
	}
	return &Bot{
		cfg:      cfg,
		log:      log,
		broker:   broker,
		engine:   engine,
		risk:     riskEng,
		ledger:   ledger,
		notifier: notifier,
		desk:     desk,
		frames:   frames,
		open:     make(map[string]openTrade),
		clock:    time.Now,
	}, nil
}

// Probe verifies at least one market has a reachable venue. Called once at
// startup so a fully dead configuration fails fast instead of spinning.
func (b *Bot) Probe(ctx context.Context) error {
	for _, m := range b.cfg.Markets {
		if _, err := b.broker.AccountSnapshot(ctx, m.Name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no market has a reachable venue")
}

// Run iterates until ctx is cancelled. The current iteration always
// finishes before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	for {
		b.rollDay()

		sleep := b.Iterate(ctx)

		select {
		case <-ctx.Done():
			b.log.Info().Msg("shutting down after completed iteration")
			return nil
		case <-time.After(sleep):
		}
	}
}

// rollDay resets the exposure book at each UTC day boundary and sends a
// heartbeat so a quiet loop is visibly alive. The first call only records
// the current day.
func (b *Bot) rollDay() {
	d := b.clock().UTC().YearDay()
	if d == b.day {
		return
	}
	first := b.day == 0
	b.day = d
	if first {
		return
	}

	b.risk.Book().ResetDay()
	b.log.Info().Msg("new trading day, exposure book reset")

	equity := b.cfg.Account.Balance
	if b.desk != nil {
		equity = b.desk.Balance()
	}
	total, trades := b.risk.Book().InUse()
	b.notifier.Send(notify.HeartbeatText(equity, total, trades))
}

// Iterate runs one full pass: evaluate every symbol, then mark open
// positions. It returns how long to sleep before the next pass, the
// minimum of the per-symbol suggestions.
func (b *Bot) Iterate(ctx context.Context) time.Duration {
	sleep := b.evaluateSymbols(ctx)
	b.markPositions(ctx)
	return sleep
}

func (b *Bot) evaluateSymbols(ctx context.Context) time.Duration {
	var (
		mu       sync.Mutex
		minSleep = 30 * time.Second
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Loop.Workers)

	for _, s := range b.cfg.Symbols {
		sym, err := market.ParseSymbol(s)
		if err != nil {
			b.log.Error().Err(err).Str("symbol", s).Msg("bad symbol in config")
			continue
		}
		g.Go(func() error {
			// One symbol failing must not take down the iteration.
			suggested, err := b.evaluate(gctx, sym)
			if err != nil {
				b.log.Warn().Err(err).Str("symbol", sym.String()).Msg("symbol evaluation failed")
				return nil
			}
			mu.Lock()
			if suggested > 0 && suggested < minSleep {
				minSleep = suggested
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if minSleep < 5*time.Second {
		minSleep = 5 * time.Second
	}
	return minSleep
}

// evaluate runs consensus and, on a buy decision, sizes and routes an entry
// for one symbol.
func (b *Bot) evaluate(ctx context.Context, sym market.Symbol) (time.Duration, error) {
	marketName := b.cfg.MarketFor(sym)

	fetch := func(ctx context.Context, s market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
		return b.broker.FetchBars(ctx, marketName, s, tf, limit)
	}

	decision, results, err := b.engine.Decide(ctx, sym, b.frames, fetch)
	if errors.Is(err, consensus.ErrNoData) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if decision.Side != market.SideBuy {
		return decision.SleepFor, nil
	}
	if b.hasOpenTrade(sym) {
		return decision.SleepFor, nil
	}

	tick, err := b.broker.FetchTicker(ctx, marketName, sym)
	if err != nil {
		return decision.SleepFor, fmt.Errorf("ticker for entry: %w", err)
	}

	atr := shortestFrameATR(results)
	stop := entryStop(tick.Price, atr)

	plan, rej := b.risk.Plan(risk.PlanRequest{
		Entry:        tick.Price,
		Stop:         stop,
		Side:         decision.Side,
		Equity:       b.equity(ctx, marketName),
		Block:        sym.Quote(),
		LeverageHint: b.cfg.LeverageFor(marketName),
		ATRHint:      atr,
	})
	if rej != nil {
		metrics.SizingRejections.WithLabelValues(rej.Code).Inc()
		b.log.Info().Str("symbol", sym.String()).Str("code", rej.Code).
			Str("reason", rej.Reason).Msg("trade rejected by risk engine")
		return decision.SleepFor, nil
	}

	// Conviction scales the base plan, and the exposure claim with it.
	// The claim is reserved before the order goes out: reserve-then-place
	// keeps a concurrent symbol from passing the same check while this
	// order is in flight.
	qty := plan.Quantity * decision.SizeMultiplier
	riskPct := plan.RiskPct * decision.SizeMultiplier
	if !b.risk.Book().TryAdd(sym.Quote(), riskPct) {
		metrics.SizingRejections.WithLabelValues(risk.RejectExposure).Inc()
		b.log.Info().Str("symbol", sym.String()).Float64("risk_pct", riskPct).
			Msg("scaled size exceeds exposure caps")
		return decision.SleepFor, nil
	}
	target := plan.Target1

	res := b.broker.PlaceMarketOrder(ctx, marketName, venue.OrderRequest{
		Symbol:   sym,
		Side:     decision.Side,
		Quantity: qty,
		Stop:     &plan.Stop,
		Target:   &target,
	})
	if !res.OK {
		b.risk.Book().Release(sym.Quote(), riskPct)
		return decision.SleepFor, fmt.Errorf("order routing: %w", res.Err)
	}

	// The desk tracks every open position. A paper fill already opened one
	// (the fill's order ID is the position ID); a live fill has not, so it
	// is mirrored here and its exit is routed back as a closing order.
	posID := res.Fill.OrderID
	live := false
	if b.desk != nil {
		if _, ok := b.desk.Position(posID); !ok {
			live = true
			pos := b.desk.Open(sym, decision.Side, res.Fill.Quantity, res.Fill.Price,
				plan.Stop, target, res.Fill.Time)
			posID = pos.ID
		}
	}

	entry := journal.Entry{
		Venue:      res.Venue,
		Market:     marketName,
		Symbol:     sym,
		Timeframe:  b.frames[0].Key,
		Side:       decision.Side,
		EntryPrice: res.Fill.Price,
		Quantity:   res.Fill.Quantity,
		Stop:       plan.Stop,
		Target:     target,
		EntryTime:  res.Fill.Time,
	}
	tradeID, err := b.ledger.LogEntry(entry)
	if err != nil {
		// The order is live; a ledger failure is loud but not fatal.
		b.log.Error().Err(err).Str("symbol", sym.String()).Msg("ledger entry failed")
	}

	b.mu.Lock()
	b.open[posID] = openTrade{
		tradeID:    tradeID,
		symbol:     sym,
		block:      sym.Quote(),
		riskPct:    riskPct,
		marketName: marketName,
		live:       live,
	}
	b.mu.Unlock()

	b.log.Info().Str("symbol", sym.String()).Str("venue", res.Venue).
		Float64("qty", res.Fill.Quantity).Float64("price", res.Fill.Price).
		Float64("probability", decision.Probability).Msg("entry placed")
	b.notifier.Send(notify.EntryText(res.Fill, plan.Stop, target))

	return decision.SleepFor, nil
}

// markPositions refreshes tickers for symbols with open desk positions and
// applies stop/target exits.
func (b *Bot) markPositions(ctx context.Context) {
	if b.desk == nil {
		return
	}

	seen := make(map[market.Symbol]bool)
	for _, pos := range b.desk.OpenPositions() {
		if seen[pos.Symbol] {
			continue
		}
		seen[pos.Symbol] = true

		marketName := b.cfg.MarketFor(pos.Symbol)
		tick, err := b.broker.FetchTicker(ctx, marketName, pos.Symbol)
		if err != nil {
			b.log.Warn().Err(err).Str("symbol", pos.Symbol.String()).Msg("no tick for mark-to-market")
			continue
		}

		for _, c := range b.desk.MarkToMarket(pos.Symbol, tick.Price, b.clock().UTC()) {
			b.settle(ctx, c)
		}
	}
}

// settle journals a desk close, releases its exposure claim, and for live
// positions routes the closing order back through the broker.
func (b *Bot) settle(ctx context.Context, c sim.Close) {
	b.mu.Lock()
	trade, tracked := b.open[c.ID]
	delete(b.open, c.ID)
	b.mu.Unlock()

	b.log.Info().Str("symbol", c.Symbol.String()).Str("reason", string(c.Reason)).
		Float64("exit", c.ExitPrice).Float64("pnl", c.Pnl).Msg("position closed")

	if !tracked {
		return
	}

	if trade.live {
		res := b.broker.PlaceMarketOrder(ctx, trade.marketName, venue.OrderRequest{
			Symbol:   c.Symbol,
			Side:     c.Side.Opposite(),
			Quantity: c.Quantity,
		})
		if !res.OK {
			b.log.Error().Err(res.Err).Str("symbol", c.Symbol.String()).
				Msg("closing order failed, venue position may still be open")
		}
	}

	b.risk.Book().Release(trade.block, trade.riskPct)

	status := closeStatus(c.Reason)
	if err := b.ledger.LogExit(trade.tradeID, c.ExitPrice, status, c.ClosedAt); err != nil {
		b.log.Error().Err(err).Str("trade", trade.tradeID.String()).Msg("ledger exit failed")
		return
	}
	if rec, err := b.ledger.Get(trade.tradeID); err == nil {
		b.notifier.Send(notify.ExitText(rec))
	}
}

// CloseAll flattens every desk position at the last known prices, for
// shutdown or an operator kill switch.
func (b *Bot) CloseAll(ctx context.Context) {
	if b.desk == nil {
		return
	}

	price := func(sym market.Symbol) (float64, bool) {
		tick, err := b.broker.FetchTicker(ctx, b.cfg.MarketFor(sym), sym)
		if err != nil {
			return 0, false
		}
		return tick.Price, true
	}
	for _, c := range b.desk.CloseAll(price, b.clock().UTC()) {
		b.settle(ctx, c)
	}
}

func (b *Bot) hasOpenTrade(sym market.Symbol) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.open {
		if t.symbol == sym {
			return true
		}
	}
	return false
}

// equity prefers the live account snapshot; when no venue answers, the
// paper balance keeps sizing deterministic.
func (b *Bot) equity(ctx context.Context, marketName string) float64 {
	if snap, err := b.broker.AccountSnapshot(ctx, marketName); err == nil {
		if eq := snap.EquityByAsset.Total(b.cfg.Account.Currency, nil); eq > 0 {
			return eq
		}
	}
	if b.desk != nil {
		return b.desk.Balance()
	}
	return b.cfg.Account.Balance
}

// entryStop derives the protective stop from volatility: two ATRs below
// entry, with a 1% floor when no ATR is available.
func entryStop(entry, atr float64) float64 {
	if atr > 0 {
		return entry - 2*atr
	}
	return entry * 0.99
}

// shortestFrameATR pulls the volatility hint from the shortest frame.
// Frames are already sorted shortest first.
func shortestFrameATR(results []consensus.FrameResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Opinion.ATR
}

func closeStatus(reason sim.CloseReason) journal.Status {
	switch reason {
	case sim.StoppedOut:
		return journal.StatusStopped
	case sim.TargetHit:
		return journal.StatusTarget
	default:
		return journal.StatusClosed
	}
}
