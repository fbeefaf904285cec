package market

import (
	"fmt"
	"strings"
)

// Symbol is the canonical BASE/QUOTE instrument form, e.g. "BTC/USD" or
// "EUR/USD". Venue-native spellings (BTCUSDT, EUR_USD) are derived from
// the canonical form by each connector's mapping.
type Symbol string

// ParseSymbol validates a canonical BASE/QUOTE string.
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok || base == "" || quote == "" {
		return "", fmt.Errorf("malformed symbol %q: want BASE/QUOTE", s)
	}
	return Symbol(strings.ToUpper(base) + "/" + strings.ToUpper(quote)), nil
}

// Base returns the base currency of the symbol.
func (s Symbol) Base() string {
	base, _, _ := strings.Cut(string(s), "/")
	return base
}

// Quote returns the quote currency of the symbol.
func (s Symbol) Quote() string {
	_, quote, _ := strings.Cut(string(s), "/")
	return quote
}

func (s Symbol) String() string { return string(s) }

// Side is the direction of a trade decision or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
	SideNone Side = "none"
)

// Sign returns +1 for buy, -1 for sell and 0 for none.
func (s Side) Sign() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	}
	return 0
}

// Opposite returns the closing direction for a position side.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	}
	return SideNone
}
