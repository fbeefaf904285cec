// Package binance adapts the Binance spot and USD-M futures REST APIs to
// the venue.Connector contract. Market data endpoints are public; balance
// and order endpoints require API keys and report missing credentials as a
// transient error so the router can fall back to another venue.
package binance

import (
	"fmt"
	"strconv"

	"github.com/rustyeddy/tradecore/market"
)

// intervals maps canonical timeframe keys to Binance kline intervals.
var intervals = map[string]string{
	"m1":  "1m",
	"m5":  "5m",
	"m15": "15m",
	"m30": "30m",
	"h1":  "1h",
	"h4":  "4h",
	"d1":  "1d",
}

func interval(tf market.Timeframe) (string, error) {
	iv, ok := intervals[tf.Key]
	if !ok {
		return "", fmt.Errorf("binance: no kline interval for timeframe %q", tf.Key)
	}
	return iv, nil
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func qtyString(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
