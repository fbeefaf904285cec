package journal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradecore/market"
)

// TradeID keys a ledger record by (symbol, timeframe, entry timestamp).
// Its string form "SYM/QUOTE|tf|unixsec" is stable and parseable back into
// its components.
type TradeID struct {
	Symbol    market.Symbol
	Timeframe string
	EntryTime time.Time
}

func NewTradeID(sym market.Symbol, timeframe string, entry time.Time) TradeID {
	return TradeID{Symbol: sym, Timeframe: timeframe, EntryTime: entry.UTC().Truncate(time.Second)}
}

func (id TradeID) String() string {
	return fmt.Sprintf("%s|%s|%d", id.Symbol, id.Timeframe, id.EntryTime.Unix())
}

// ParseTradeID reconstructs a TradeID from its string form.
func ParseTradeID(s string) (TradeID, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 3 {
		return TradeID{}, fmt.Errorf("malformed trade id %q", s)
	}
	sym, err := market.ParseSymbol(parts[0])
	if err != nil {
		return TradeID{}, fmt.Errorf("trade id %q: %w", s, err)
	}
	if parts[1] == "" {
		return TradeID{}, fmt.Errorf("trade id %q: empty timeframe", s)
	}
	sec, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return TradeID{}, fmt.Errorf("trade id %q: bad timestamp: %w", s, err)
	}
	return TradeID{
		Symbol:    sym,
		Timeframe: parts[1],
		EntryTime: time.Unix(sec, 0).UTC(),
	}, nil
}
