package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradecore/consensus"
	"github.com/rustyeddy/tradecore/indicators"
	"github.com/rustyeddy/tradecore/market"
)

// TrendConfig parameterizes the EMA spread opinion.
type TrendConfig struct {
	FastPeriod int `yaml:"fast_period"`
	SlowPeriod int `yaml:"slow_period"`
	ATRPeriod  int `yaml:"atr_period"`

	// Strength converts the ATR-normalized EMA spread into probability
	// distance from 0.5.
	Strength float64 `yaml:"strength"`
}

func TrendDefaults() TrendConfig {
	return TrendConfig{
		FastPeriod: 12,
		SlowPeriod: 26,
		ATRPeriod:  14,
		Strength:   0.15,
	}
}

// Trend derives a directional opinion from the fast/slow EMA spread,
// normalized by ATR so the probability is comparable across symbols and
// timeframes. One instance evaluates one timeframe once.
type Trend struct {
	cfg TrendConfig
}

func NewTrend(cfg TrendConfig) *Trend {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= cfg.FastPeriod {
		cfg = TrendDefaults()
	}
	return &Trend{cfg: cfg}
}

func (s *Trend) Evaluate(tf market.Timeframe, bars []market.Bar) consensus.Opinion {
	neutral := consensus.Opinion{Side: market.SideNone, Probability: 0.5, SleepFor: tf.PollEvery}

	if len(bars) < s.cfg.SlowPeriod+1 {
		neutral.Reasons = []string{fmt.Sprintf("%s: %d bars, need %d for trend", tf.Key, len(bars), s.cfg.SlowPeriod+1)}
		return neutral
	}

	closes := market.Closes(bars)
	fast := indicators.NewEMA(s.cfg.FastPeriod).Calculate(closes)
	slow := indicators.NewEMA(s.cfg.SlowPeriod).Calculate(closes)
	atr := indicators.NewATR(s.cfg.ATRPeriod).Calculate(bars)

	if atr <= 0 {
		return neutral
	}

	// Spread in ATR units, squashed into (-0.45, +0.45) around 0.5.
	spread := (fast - slow) / atr
	shift := math.Max(-0.45, math.Min(0.45, spread*s.cfg.Strength))
	prob := 0.5 + shift

	side := market.SideNone
	switch {
	case shift > 0:
		side = market.SideBuy
	case shift < 0:
		side = market.SideSell
	}

	op := consensus.Opinion{
		Side:        side,
		Probability: prob,
		ATR:         atr,
		SleepFor:    tf.PollEvery,
	}
	op.Reasons = append(op.Reasons,
		fmt.Sprintf("%s: ema%d %s ema%d by %.2f ATR",
			tf.Key, s.cfg.FastPeriod, aboveBelow(shift), s.cfg.SlowPeriod, math.Abs(spread)))
	return op
}

func aboveBelow(shift float64) string {
	if shift >= 0 {
		return "above"
	}
	return "below"
}

// ATRHint exposes the strategy's volatility estimate for the risk ladder.
func (s *Trend) ATRHint(bars []market.Bar) float64 {
	if len(bars) < s.cfg.ATRPeriod+1 {
		return 0
	}
	return indicators.NewATR(s.cfg.ATRPeriod).Calculate(bars)
}
