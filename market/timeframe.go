package market

import (
	"fmt"
	"sort"
	"time"
)

// Timeframe describes one bar interval used by the consensus engine.
// Weight grows with bar length so longer frames dominate the fused
// probability; PollEvery is the frame's suggested re-evaluation interval.
type Timeframe struct {
	Key       string
	Bar       time.Duration
	Weight    float64
	PollEvery time.Duration
}

var timeframes = map[string]Timeframe{
	"m1":  {Key: "m1", Bar: time.Minute, Weight: 1.0, PollEvery: 30 * time.Second},
	"m5":  {Key: "m5", Bar: 5 * time.Minute, Weight: 1.2, PollEvery: time.Minute},
	"m15": {Key: "m15", Bar: 15 * time.Minute, Weight: 1.4, PollEvery: 3 * time.Minute},
	"m30": {Key: "m30", Bar: 30 * time.Minute, Weight: 1.5, PollEvery: 5 * time.Minute},
	"h1":  {Key: "h1", Bar: time.Hour, Weight: 1.6, PollEvery: 10 * time.Minute},
	"h4":  {Key: "h4", Bar: 4 * time.Hour, Weight: 2.5, PollEvery: 30 * time.Minute},
	"d1":  {Key: "d1", Bar: 24 * time.Hour, Weight: 3.0, PollEvery: 2 * time.Hour},
}

// TimeframeByKey looks up a timeframe by its short key (m1, h4, ...).
func TimeframeByKey(key string) (Timeframe, error) {
	tf, ok := timeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("unknown timeframe %q", key)
	}
	return tf, nil
}

// Timeframes resolves a list of keys and returns the frames sorted
// shortest to longest.
func Timeframes(keys []string) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(keys))
	for _, k := range keys {
		tf, err := TimeframeByKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	SortTimeframes(out)
	return out, nil
}

// SortTimeframes orders frames shortest bar first.
func SortTimeframes(tfs []Timeframe) {
	sort.Slice(tfs, func(i, j int) bool { return tfs[i].Bar < tfs[j].Bar })
}
