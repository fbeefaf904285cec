package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradecore/market"
)

var entryTime = time.Date(2026, 4, 10, 14, 30, 0, 0, time.UTC)

func sampleEntry() Entry {
	return Entry{
		Venue:      "binance-spot",
		Market:     "crypto-spot",
		Symbol:     "BTC/USD",
		Timeframe:  "h1",
		Side:       market.SideBuy,
		EntryPrice: 100,
		Quantity:   50,
		Stop:       98,
		Target:     106,
		EntryTime:  entryTime,
	}
}

func TestTradeIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := NewTradeID("BTC/USD", "h1", entryTime)
	parsed, err := ParseTradeID(id.String())
	require.NoError(t, err)

	assert.Equal(t, id.Symbol, parsed.Symbol)
	assert.Equal(t, id.Timeframe, parsed.Timeframe)
	assert.True(t, id.EntryTime.Equal(parsed.EntryTime))
}

func TestParseTradeIDRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "BTC/USD", "BTC/USD|h1", "BTC/USD|h1|notanumber", "BTCUSD|h1|100", "BTC/USD||100"} {
		_, err := ParseTradeID(s)
		assert.Error(t, err, s)
	}
}

// ledgers under test share one behavioral contract.
func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	dir := t.TempDir()

	sq, err := NewSQLite(filepath.Join(dir, "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	cv, err := NewCSV(filepath.Join(dir, "ledger.csv"))
	require.NoError(t, err)
	t.Cleanup(func() { cv.Close() })

	return map[string]Ledger{"sqlite": sq, "csv": cv}
}

func TestLedgerEntryExitLifecycle(t *testing.T) {
	for name, l := range ledgers(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			id, err := l.LogEntry(sampleEntry())
			require.NoError(t, err)

			rec, err := l.Get(id)
			require.NoError(t, err)
			assert.Equal(t, StatusOpen, rec.Status)
			assert.Equal(t, "binance-spot", rec.Venue)

			exitTime := entryTime.Add(90 * time.Minute)
			require.NoError(t, l.LogExit(id, 106, StatusTarget, exitTime))

			rec, err = l.Get(id)
			require.NoError(t, err)
			assert.Equal(t, StatusTarget, rec.Status)
			assert.InDelta(t, 106.0, rec.ExitPrice, 1e-9)
			// pnl = (106-100) * 50 = 300; riskUnit 2 -> 3R
			assert.InDelta(t, 300.0, rec.RealizedPnl, 1e-9)
			assert.InDelta(t, 3.0, rec.PnlR, 1e-9)
			assert.Equal(t, 90, rec.HoldMinutes)
		})
	}
}

func TestLedgerDoubleExitIsNoOp(t *testing.T) {
	for name, l := range ledgers(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			id, err := l.LogEntry(sampleEntry())
			require.NoError(t, err)

			exitTime := entryTime.Add(time.Hour)
			require.NoError(t, l.LogExit(id, 98, StatusStopped, exitTime))

			// Second exit with different values must not take.
			require.NoError(t, l.LogExit(id, 200, StatusTarget, exitTime.Add(time.Hour)))

			rec, err := l.Get(id)
			require.NoError(t, err)
			assert.Equal(t, StatusStopped, rec.Status)
			assert.InDelta(t, 98.0, rec.ExitPrice, 1e-9)
			assert.InDelta(t, -100.0, rec.RealizedPnl, 1e-9)
		})
	}
}

func TestLedgerExitUnknownTrade(t *testing.T) {
	for name, l := range ledgers(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			id := NewTradeID("ETH/USD", "m5", entryTime)
			err := l.LogExit(id, 10, StatusClosed, entryTime.Add(time.Minute))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteListByStatus(t *testing.T) {
	dir := t.TempDir()
	l, err := NewSQLite(filepath.Join(dir, "ledger.sqlite"))
	require.NoError(t, err)
	defer l.Close()

	e1 := sampleEntry()
	id1, err := l.LogEntry(e1)
	require.NoError(t, err)

	e2 := sampleEntry()
	e2.Symbol = "ETH/USD"
	_, err = l.LogEntry(e2)
	require.NoError(t, err)

	require.NoError(t, l.LogExit(id1, 106, StatusTarget, entryTime.Add(time.Hour)))

	open, err := l.ListByStatus(StatusOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, market.Symbol("ETH/USD"), open[0].Symbol)

	done, err := l.ListByStatus(StatusTarget)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, market.Symbol("BTC/USD"), done[0].Symbol)
}
