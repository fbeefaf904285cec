package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradecore/market"
	"github.com/rustyeddy/tradecore/sim"
	"github.com/rustyeddy/tradecore/venue"
)

func newVenue() *Venue {
	return New(sim.NewDesk(10000, 0), market.NewTickStore())
}

func TestPlaceOrderFillsAtLastPrice(t *testing.T) {
	t.Parallel()

	v := newVenue()
	v.SeedTick(market.Tick{Symbol: "BTC/USD", Price: 100, Time: time.Now()})

	stop, target := 98.0, 106.0
	fill, err := v.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol:   "BTC/USD",
		Side:     market.SideBuy,
		Quantity: 2,
		Stop:     &stop,
		Target:   &target,
	})
	require.NoError(t, err)

	assert.Equal(t, "paper", fill.Venue)
	assert.InDelta(t, 100.0, fill.Price, 1e-9)

	open := v.Desk().OpenPositions()
	require.Len(t, open, 1)
	assert.InDelta(t, 98.0, open[0].Stop, 1e-9)
	assert.InDelta(t, 106.0, open[0].Target, 1e-9)
}

func TestPlaceOrderWithoutTickFails(t *testing.T) {
	t.Parallel()

	v := newVenue()
	_, err := v.PlaceOrder(context.Background(), venue.OrderRequest{
		Symbol: "BTC/USD", Side: market.SideBuy, Quantity: 1,
	})
	assert.ErrorIs(t, err, market.ErrNoTick)
}

func TestSeededBarsServedNewestTail(t *testing.T) {
	t.Parallel()

	v := newVenue()
	tf, _ := market.TimeframeByKey("h1")

	bars := make([]market.Bar, 10)
	for i := range bars {
		bars[i] = market.Bar{Time: time.Unix(int64(i*3600), 0), Close: float64(i)}
	}
	v.SeedBars("BTC/USD", tf, bars)

	got, err := v.FetchBars(context.Background(), "BTC/USD", tf, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 7.0, got[0].Close, 1e-9)
	assert.InDelta(t, 9.0, got[2].Close, 1e-9)
}

func TestFetchBarsUnseededIsEmpty(t *testing.T) {
	t.Parallel()

	v := newVenue()
	tf, _ := market.TimeframeByKey("m5")
	got, err := v.FetchBars(context.Background(), "ETH/USD", tf, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBalanceTracksDesk(t *testing.T) {
	t.Parallel()

	v := newVenue()
	bal, err := v.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, bal["USD"], 1e-9)
}
