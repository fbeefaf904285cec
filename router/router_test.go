package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/venue"
)

// fakeConnector scripts per-call failures and counts attempts.
type fakeConnector struct {
	name       string
	barsErr    error
	orderErr   error
	tickErr    error
	balErr     error
	price      float64
	bars       []market.Bar
	barsCalls  int
	orderCalls int
	tickCalls  int
}

func (f *fakeConnector) Name() string { return f.name }

func (f *fakeConnector) FetchBars(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error) {
	f.barsCalls++
	if f.barsErr != nil {
		return nil, f.barsErr
	}
	return f.bars, nil
}

func (f *fakeConnector) FetchTicker(ctx context.Context, sym market.Symbol) (market.Tick, error) {
	f.tickCalls++
	if f.tickErr != nil {
		return market.Tick{}, f.tickErr
	}
	return market.Tick{Symbol: sym, Price: f.price, Time: time.Now()}, nil
}

func (f *fakeConnector) FetchBalance(ctx context.Context) (venue.Balance, error) {
	if f.balErr != nil {
		return nil, f.balErr
	}
	return venue.Balance{"USD": 10000}, nil
}

func (f *fakeConnector) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderFill, error) {
	f.orderCalls++
	if f.orderErr != nil {
		return venue.OrderFill{}, f.orderErr
	}
	return venue.OrderFill{
		OrderID:  "ord-1",
		Venue:    f.name,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    f.price,
		Time:     time.Now(),
	}, nil
}

func (f *fakeConnector) CancelOrder(ctx context.Context, sym market.Symbol, orderID string) error {
	return nil
}

func testConfig() Config {
	return Config{CallTimeout: time.Second, VenueRate: 10000, VenueBurst: 100}
}

func newRouter(conns ...venue.Connector) *Router {
	m := &Market{
		Name:       "crypto-spot",
		Connectors: conns,
		Rules: map[market.Symbol]venue.SymbolRule{
			"BTC/USD": {QuantityStep: 0.0001, MinNotional: 10, PricePrecision: 2},
		},
	}
	return New(testConfig(), zerolog.Nop(), m)
}

var someBars = []market.Bar{{Time: time.Unix(1700000000, 0), Open: 1, High: 2, Low: 1, Close: 2}}

func TestFetchBarsFallsBackOnTransient(t *testing.T) {
	t.Parallel()

	primary := &fakeConnector{name: "primary", barsErr: venue.ErrRateLimited}
	fallback := &fakeConnector{name: "fallback", bars: someBars}
	r := newRouter(primary, fallback)

	tf, _ := market.TimeframeByKey("h1")
	bars, err := r.FetchBars(context.Background(), "crypto-spot", "BTC/USD", tf, 100)
	require.NoError(t, err)

	assert.Len(t, bars, 1)
	assert.Equal(t, 1, primary.barsCalls) // primary attempted exactly once
	assert.Equal(t, 1, fallback.barsCalls)
}

func TestFetchBarsPermanentErrorSurfacesImmediately(t *testing.T) {
	t.Parallel()

	primary := &fakeConnector{name: "primary", barsErr: venue.ErrBadSymbol}
	fallback := &fakeConnector{name: "fallback", bars: someBars}
	r := newRouter(primary, fallback)

	tf, _ := market.TimeframeByKey("h1")
	_, err := r.FetchBars(context.Background(), "crypto-spot", "BTC/USD", tf, 100)
	assert.ErrorIs(t, err, venue.ErrBadSymbol)
	assert.Equal(t, 0, fallback.barsCalls) // not retried across venues
}

func TestFetchBarsExhaustedIsEmptyNotError(t *testing.T) {
	t.Parallel()

	a := &fakeConnector{name: "a", barsErr: venue.ErrRateLimited}
	b := &fakeConnector{name: "b", barsErr: venue.ErrGeoBlocked}
	r := newRouter(a, b)

	tf, _ := market.TimeframeByKey("h1")
	bars, err := r.FetchBars(context.Background(), "crypto-spot", "BTC/USD", tf, 100)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestFetchBarsUnknownMarket(t *testing.T) {
	t.Parallel()

	r := newRouter(&fakeConnector{name: "a", bars: someBars})
	tf, _ := market.TimeframeByKey("h1")
	_, err := r.FetchBars(context.Background(), "fx", "EUR/USD", tf, 10)
	assert.Error(t, err)
}

func TestEveryConnectorTriedOnceWhenAllTransient(t *testing.T) {
	t.Parallel()

	conns := make([]venue.Connector, 6)
	fakes := make([]*fakeConnector, 6)
	for i := range conns {
		f := &fakeConnector{name: string(rune('a' + i)), barsErr: venue.ErrRateLimited}
		fakes[i] = f
		conns[i] = f
	}
	r := newRouter(conns...)

	tf, _ := market.TimeframeByKey("m1")
	bars, err := r.FetchBars(context.Background(), "crypto-spot", "BTC/USD", tf, 10)
	require.NoError(t, err)
	assert.Empty(t, bars)

	// Shuffling the tail must not drop or duplicate attempts.
	for i, f := range fakes {
		assert.Equal(t, 1, f.barsCalls, "connector %d", i)
	}
}

func TestPlaceOrderResolvesNotional(t *testing.T) {
	t.Parallel()

	c := &fakeConnector{name: "spot", price: 50000}
	r := newRouter(c)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Notional: 5000,
	})
	require.True(t, res.OK, "err: %v", res.Err)

	// 5000 / 50000 = 0.1, already on the 0.0001 step.
	assert.InDelta(t, 0.1, res.Fill.Quantity, 1e-9)
	assert.Equal(t, "spot", res.Venue)
}

func TestPlaceOrderBelowMinNotionalRejectedLocally(t *testing.T) {
	t.Parallel()

	c := &fakeConnector{name: "spot", price: 50000}
	r := newRouter(c)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Notional: 5, // below the 10 USD minimum
	})
	require.False(t, res.OK)
	assert.ErrorIs(t, res.Err, venue.ErrBelowMinNotional)
	assert.Equal(t, 0, c.orderCalls) // rejected before any order round-trip
}

func TestPlaceOrderQuantityFlooredToStep(t *testing.T) {
	t.Parallel()

	c := &fakeConnector{name: "spot", price: 100}
	r := newRouter(c)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Quantity: 1.23456789,
	})
	require.True(t, res.OK)
	assert.InDelta(t, 1.2345, res.Fill.Quantity, 1e-12)
}

func TestPlaceOrderFallsBackToPaper(t *testing.T) {
	t.Parallel()

	live := &fakeConnector{name: "live", price: 100, orderErr: venue.ErrMissingCredentials}
	paper := &fakeConnector{name: "paper", price: 100}
	r := newRouter(live, paper)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Quantity: 1,
	})
	require.True(t, res.OK)
	assert.Equal(t, "paper", res.Venue)
	assert.Equal(t, 1, live.orderCalls)
}

func TestPlaceOrderInsufficientFundsNotRetried(t *testing.T) {
	t.Parallel()

	live := &fakeConnector{name: "live", price: 100, orderErr: venue.ErrInsufficientFunds}
	paper := &fakeConnector{name: "paper", price: 100}
	r := newRouter(live, paper)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Quantity: 1,
	})
	require.False(t, res.OK)
	assert.ErrorIs(t, res.Err, venue.ErrInsufficientFunds)
	assert.Equal(t, 0, paper.orderCalls)
}

func TestPlaceOrderAllVenuesDownReturnsResultNotPanic(t *testing.T) {
	t.Parallel()

	a := &fakeConnector{name: "a", price: 100, orderErr: venue.ErrRateLimited}
	b := &fakeConnector{name: "b", price: 100, orderErr: venue.ErrGeoBlocked}
	r := newRouter(a, b)

	res := r.PlaceMarketOrder(context.Background(), "crypto-spot", venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Quantity: 1,
	})
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, ErrExhausted)
}

func TestAccountSnapshot(t *testing.T) {
	t.Parallel()

	down := &fakeConnector{name: "down", balErr: venue.ErrRateLimited}
	up := &fakeConnector{name: "up"}
	r := newRouter(down, up)

	snap, err := r.AccountSnapshot(context.Background(), "crypto-spot")
	require.NoError(t, err)
	assert.Equal(t, "up", snap.Venue)
	assert.InDelta(t, 10000.0, snap.EquityByAsset["USD"], 1e-9)
}

func TestAccountSnapshotAllDown(t *testing.T) {
	t.Parallel()

	down := &fakeConnector{name: "down", balErr: venue.ErrRateLimited}
	r := newRouter(down)

	_, err := r.AccountSnapshot(context.Background(), "crypto-spot")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestWalkStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &fakeConnector{name: "a", bars: someBars}
	r := newRouter(c)
	tf, _ := market.TimeframeByKey("h1")

	_, err := r.FetchBars(ctx, "crypto-spot", "BTC/USD", tf, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyUnknownConnectionErrorSurfaced(t *testing.T) {
	t.Parallel()

	primary := &fakeConnector{name: "a", barsErr: errors.New("tls handshake failure")}
	fallback := &fakeConnector{name: "b", bars: someBars}
	r := newRouter(primary, fallback)

	tf, _ := market.TimeframeByKey("h1")
	_, err := r.FetchBars(context.Background(), "crypto-spot", "BTC/USD", tf, 10)
	assert.Error(t, err)
	assert.Equal(t, 0, fallback.barsCalls)
}
