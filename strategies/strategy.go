package strategies

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/market"
)

// Factories are registered by name so the config file can pick a strategy.
var registry = make(map[string]consensus.StrategyFactory)

func Register(name string, factory consensus.StrategyFactory) {
	registry[name] = factory
}

// ByName resolves a registered strategy factory.
func ByName(name string) (consensus.StrategyFactory, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(names(), ", "))
	}
	return f, nil
}

func names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	return out
}

func init() {
	Register("trend", func(tf market.Timeframe) consensus.Strategy {
		return NewTrend(TrendDefaults())
	})
	Register("noop", func(tf market.Timeframe) consensus.Strategy {
		return Noop{}
	})
}

// Noop never has an opinion. Useful for wiring tests and dry runs.
type Noop struct{}

func (Noop) Evaluate(tf market.Timeframe, bars []market.Bar) consensus.Opinion {
	return consensus.Opinion{Side: market.SideNone, Probability: 0.5, SleepFor: tf.PollEvery}
}
