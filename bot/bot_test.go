package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradecore/config"
	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/journal"
	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/risk"
	"github.com/rustyeddy/tradecore/router"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/venue"
)

var loopStart = time.Date(2026, 4, 10, 14, 30, 0, 0, time.UTC)

// stubBroker serves canned bars and fills orders on a simulated desk, the
// way the paper venue does.
type stubBroker struct {
	mu      sync.Mutex
	desk    *sim.Desk
	price   float64
	bars    []market.Bar
	orders  []venue.OrderRequest
	fills   []venue.OrderFill
	snapErr error
}

func (s *stubBroker) FetchBars(ctx context.Context, marketName string, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	return s.bars, nil
}

func (s *stubBroker) FetchTicker(ctx context.Context, marketName string, sym market.Symbol) (market.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return market.Tick{Symbol: sym, Price: s.price, Time: loopStart}, nil
}

func (s *stubBroker) PlaceMarketOrder(ctx context.Context, marketName string, req venue.OrderRequest) router.OrderResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, req)

	var stop, target float64
	if req.Stop != nil {
		stop = *req.Stop
	}
	if req.Target != nil {
		target = *req.Target
	}
	pos := s.desk.Open(req.Symbol, req.Side, req.Quantity, s.price, stop, target, loopStart)

	fill := venue.OrderFill{
		OrderID:  pos.ID,
		Venue:    "paper",
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    s.price,
		Time:     loopStart,
	}
	s.fills = append(s.fills, fill)
	return router.OrderResult{OK: true, Venue: "paper", Fill: fill}
}

func (s *stubBroker) AccountSnapshot(ctx context.Context, marketName string) (router.Snapshot, error) {
	if s.snapErr != nil {
		return router.Snapshot{}, s.snapErr
	}
	return router.Snapshot{Venue: "paper", EquityByAsset: venue.Balance{"USD": 10000}}, nil
}

func (s *stubBroker) setPrice(p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = p
}

// fixedStrategy always reports the same opinion.
type fixedStrategy struct {
	side market.Side
	prob float64
}

func (f fixedStrategy) Evaluate(tf market.Timeframe, bars []market.Bar) consensus.Opinion {
	return consensus.Opinion{Side: f.side, Probability: f.prob, ATR: 1.0, SleepFor: tf.PollEvery}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Symbols = []string{"BTC/USD"}
	cfg.Timeframes = []string{"m5", "h1", "h4"}
	return cfg
}

func testBars() []market.Bar {
	return []market.Bar{{Time: loopStart.Add(-time.Hour), Open: 99, High: 101, Low: 98, Close: 100}}
}

func buildBot(t *testing.T, cfg config.Config, broker Broker, strat consensus.Strategy, desk *sim.Desk) (*Bot, journal.Ledger) {
	t.Helper()

	engine := consensus.NewEngine(
		func(tf market.Timeframe) consensus.Strategy { return strat },
		consensus.DefaultTuning(), cfg.Loop.BarWindow, zerolog.Nop())

	book := risk.NewExposureBook(cfg.Risk.MaxTotalPct, cfg.Risk.MaxConcurrent)
	riskEng := risk.NewEngine(cfg.Limits(), book)

	ledger, err := journal.NewCSV(filepath.Join(t.TempDir(), "trades.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	b, err := New(cfg, zerolog.Nop(), broker, engine, riskEng, ledger, noopNotifier{}, desk)
	require.NoError(t, err)
	b.clock = func() time.Time { return loopStart }
	return b, ledger
}

func testBot(t *testing.T, strat consensus.Strategy) (*Bot, *stubBroker, journal.Ledger) {
	t.Helper()

	cfg := testConfig()
	desk := sim.NewDesk(cfg.Account.Balance, 0)
	broker := &stubBroker{desk: desk, price: 100, bars: testBars()}

	b, ledger := buildBot(t, cfg, broker, strat, desk)
	return b, broker, ledger
}

type noopNotifier struct{}

func (noopNotifier) Send(string) {}

func TestIterateOpensEntryOnBuyConsensus(t *testing.T) {
	b, broker, ledger := testBot(t, fixedStrategy{side: market.SideBuy, prob: 0.8})

	b.Iterate(context.Background())

	require.Len(t, broker.orders, 1)
	req := broker.orders[0]
	assert.Equal(t, market.Symbol("BTC/USD"), req.Symbol)
	assert.Equal(t, market.SideBuy, req.Side)
	require.NotNil(t, req.Stop)

	// Stop sits two ATRs below the 100 entry.
	assert.InDelta(t, 98.0, *req.Stop, 1e-9)

	id := journal.NewTradeID("BTC/USD", "m5", loopStart)
	rec, err := ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusOpen, rec.Status)
	assert.InDelta(t, 100.0, rec.EntryPrice, 1e-9)

	total, trades := b.risk.Book().InUse()
	assert.Greater(t, total, 0.0)
	assert.Equal(t, 1, trades)
}

func TestIterateDoesNotStackEntries(t *testing.T) {
	b, broker, _ := testBot(t, fixedStrategy{side: market.SideBuy, prob: 0.8})

	b.Iterate(context.Background())
	b.Iterate(context.Background())

	assert.Len(t, broker.orders, 1)
}

func TestStopOutSettlesLedgerAndReleasesExposure(t *testing.T) {
	b, broker, ledger := testBot(t, fixedStrategy{side: market.SideBuy, prob: 0.8})

	b.Iterate(context.Background())
	require.Len(t, broker.orders, 1)

	// Next pass sees the price through the stop. The entry guard keeps a
	// second order out while the first is open.
	broker.setPrice(97)
	b.Iterate(context.Background())

	id := journal.NewTradeID("BTC/USD", "m5", loopStart)
	rec, err := ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusStopped, rec.Status)
	assert.InDelta(t, 98.0, rec.ExitPrice, 1e-9)

	total, trades := b.risk.Book().InUse()
	assert.InDelta(t, 0.0, total, 1e-9)
	assert.Zero(t, trades)
	assert.Empty(t, b.desk.OpenPositions())
}

func TestNeutralConsensusPlacesNothing(t *testing.T) {
	b, broker, _ := testBot(t, fixedStrategy{side: market.SideNone, prob: 0.5})

	b.Iterate(context.Background())

	assert.Empty(t, broker.orders)
}

func TestIterateSleepFloor(t *testing.T) {
	b, _, _ := testBot(t, fixedStrategy{side: market.SideBuy, prob: 0.99})

	sleep := b.Iterate(context.Background())
	assert.GreaterOrEqual(t, sleep, 5*time.Second)
}

func TestProbe(t *testing.T) {
	b, broker, _ := testBot(t, fixedStrategy{side: market.SideNone, prob: 0.5})

	require.NoError(t, b.Probe(context.Background()))

	broker.snapErr = errors.New("connection refused")
	assert.Error(t, b.Probe(context.Background()))
}

// gatedBroker holds the first order in flight until every symbol has
// fetched its entry ticker, forcing the sizing windows to overlap.
type gatedBroker struct {
	stubBroker
	tickets chan struct{}
}

func (g *gatedBroker) FetchTicker(ctx context.Context, marketName string, sym market.Symbol) (market.Tick, error) {
	g.tickets <- struct{}{}
	return g.stubBroker.FetchTicker(ctx, marketName, sym)
}

func (g *gatedBroker) PlaceMarketOrder(ctx context.Context, marketName string, req venue.OrderRequest) router.OrderResult {
	for i := 0; i < 2; i++ {
		select {
		case <-g.tickets:
		case <-time.After(2 * time.Second):
		}
	}
	return g.stubBroker.PlaceMarketOrder(ctx, marketName, req)
}

func TestConcurrentSymbolsCannotExceedTradeCap(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"BTC/USD", "ETH/USD"}
	cfg.Risk.MaxConcurrent = 1

	desk := sim.NewDesk(cfg.Account.Balance, 0)
	broker := &gatedBroker{
		stubBroker: stubBroker{desk: desk, price: 100, bars: testBars()},
		tickets:    make(chan struct{}, 8),
	}
	b, _ := buildBot(t, cfg, broker, fixedStrategy{side: market.SideBuy, prob: 0.8}, desk)

	b.Iterate(context.Background())

	// The second symbol sizes while the first order is still in flight;
	// only one may claim the single open-trade slot.
	broker.mu.Lock()
	placed := len(broker.orders)
	broker.mu.Unlock()
	assert.Equal(t, 1, placed)

	_, trades := b.risk.Book().InUse()
	assert.Equal(t, 1, trades)
}

// liveBroker fills orders the way a real venue does: the fill comes back
// with a venue order ID and nothing is opened on the local desk.
type liveBroker struct {
	mu     sync.Mutex
	price  float64
	bars   []market.Bar
	orders []venue.OrderRequest
}

func (l *liveBroker) FetchBars(ctx context.Context, marketName string, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	return l.bars, nil
}

func (l *liveBroker) FetchTicker(ctx context.Context, marketName string, sym market.Symbol) (market.Tick, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return market.Tick{Symbol: sym, Price: l.price, Time: loopStart}, nil
}

func (l *liveBroker) PlaceMarketOrder(ctx context.Context, marketName string, req venue.OrderRequest) router.OrderResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.orders = append(l.orders, req)
	fill := venue.OrderFill{
		OrderID:  fmt.Sprintf("ex-%d", len(l.orders)),
		Venue:    "binance-spot",
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    l.price,
		Time:     loopStart,
	}
	return router.OrderResult{OK: true, Venue: "binance-spot", Fill: fill}
}

func (l *liveBroker) AccountSnapshot(ctx context.Context, marketName string) (router.Snapshot, error) {
	return router.Snapshot{Venue: "binance-spot", EquityByAsset: venue.Balance{"USD": 10000}}, nil
}

func (l *liveBroker) setPrice(p float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.price = p
}

func TestLiveFillIsTrackedAndExitRouted(t *testing.T) {
	cfg := testConfig()
	desk := sim.NewDesk(cfg.Account.Balance, 0)
	broker := &liveBroker{price: 100, bars: testBars()}
	b, ledger := buildBot(t, cfg, broker, fixedStrategy{side: market.SideBuy, prob: 0.8}, desk)

	b.Iterate(context.Background())

	// The venue fill is mirrored onto the desk with its stop and target.
	require.Len(t, broker.orders, 1)
	positions := desk.OpenPositions()
	require.Len(t, positions, 1)
	assert.InDelta(t, 98.0, positions[0].Stop, 1e-9)
	assert.InDelta(t, broker.orders[0].Quantity, positions[0].Quantity, 1e-9)

	// Price through the stop: the desk close routes a closing order back
	// through the broker and settles the ledger and the exposure book.
	broker.setPrice(97)
	b.Iterate(context.Background())

	require.Len(t, broker.orders, 2)
	exit := broker.orders[1]
	assert.Equal(t, market.SideSell, exit.Side)
	assert.Equal(t, market.Symbol("BTC/USD"), exit.Symbol)
	assert.InDelta(t, positions[0].Quantity, exit.Quantity, 1e-9)
	assert.Nil(t, exit.Stop)

	rec, err := ledger.Get(journal.NewTradeID("BTC/USD", "m5", loopStart))
	require.NoError(t, err)
	assert.Equal(t, journal.StatusStopped, rec.Status)

	total, trades := b.risk.Book().InUse()
	assert.InDelta(t, 0.0, total, 1e-9)
	assert.Zero(t, trades)
	assert.Empty(t, desk.OpenPositions())
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingNotifier) Send(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, text)
}

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func TestRollDayResetsBookAndHeartbeats(t *testing.T) {
	b, _, _ := testBot(t, fixedStrategy{side: market.SideNone, prob: 0.5})
	rec := &recordingNotifier{}
	b.notifier = rec

	// First call only records the session day.
	b.rollDay()
	assert.Empty(t, rec.messages())

	b.risk.Book().Add("USD", 1.0)
	b.clock = func() time.Time { return loopStart.Add(24 * time.Hour) }
	b.rollDay()

	total, trades := b.risk.Book().InUse()
	assert.InDelta(t, 0.0, total, 1e-9)
	assert.Zero(t, trades)

	msgs := rec.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "HEARTBEAT")

	// Same day again: no second heartbeat.
	b.rollDay()
	assert.Len(t, rec.messages(), 1)
}

func TestCloseAllFlattens(t *testing.T) {
	b, broker, ledger := testBot(t, fixedStrategy{side: market.SideBuy, prob: 0.8})

	b.Iterate(context.Background())
	require.NotEmpty(t, b.desk.OpenPositions())

	broker.setPrice(101)
	b.CloseAll(context.Background())

	assert.Empty(t, b.desk.OpenPositions())

	id := journal.NewTradeID("BTC/USD", "m5", loopStart)
	rec, err := ledger.Get(id)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusClosed, rec.Status)
}
