// Package consensus fuses independent per-timeframe strategy opinions into
// one trade decision: a weighted probability with an agreement bonus, a
// longest-frame veto, and a conjunctive entry gate.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/tradecore/market"
)

// ErrNoData is returned when no timeframe produced any bars this cycle.
// Callers treat it as "skip this symbol", not as a failure.
var ErrNoData = errors.New("no bar data for any timeframe")

// Opinion is one timeframe's independent view. ATR carries the frame's
// volatility estimate for downstream stop placement; zero means unknown.
type Opinion struct {
	Side        market.Side
	Probability float64
	ATR         float64
	Reasons     []string
	SleepFor    time.Duration
}

// Strategy produces an Opinion from one timeframe's bar window. A fresh
// instance is created per evaluation so no state leaks across cycles.
type Strategy interface {
	Evaluate(tf market.Timeframe, bars []market.Bar) Opinion
}

// StrategyFactory builds a per-timeframe strategy instance.
type StrategyFactory func(tf market.Timeframe) Strategy

// BarFetcher supplies the bar window for one symbol/timeframe pair. An
// empty result is valid and means "no data available".
type BarFetcher func(ctx context.Context, sym market.Symbol, tf market.Timeframe, limit int) ([]market.Bar, error)

// FrameResult records one timeframe's contribution for audit.
type FrameResult struct {
	Timeframe market.Timeframe
	Opinion   Opinion
	Bars      int
}

// Decision is the fused output. Created fresh per cycle, never mutated
// after construction, consumed once by the risk engine.
type Decision struct {
	Symbol         market.Symbol
	Side           market.Side
	Probability    float64
	SizeMultiplier float64
	SleepFor       time.Duration
	Reasons        []string
	Votes          map[string]float64
	Features       map[string]float64
}

// Engine runs one strategy instance per timeframe and aggregates.
type Engine struct {
	factory   StrategyFactory
	tuning    Tuning
	barWindow int
	log       zerolog.Logger
}

// NewEngine builds an engine that requests barWindow bars per frame; a
// non-positive window falls back to 200.
func NewEngine(factory StrategyFactory, tuning Tuning, barWindow int, log zerolog.Logger) *Engine {
	if barWindow <= 0 {
		barWindow = 200
	}
	return &Engine{
		factory:   factory,
		tuning:    tuning,
		barWindow: barWindow,
		log:       log,
	}
}

// Decide evaluates sym across the given timeframes and fuses the opinions.
// Timeframes are processed shortest to longest; frames with no data are
// skipped. When every frame is empty, ErrNoData is returned.
func (e *Engine) Decide(ctx context.Context, sym market.Symbol, tfs []market.Timeframe, fetch BarFetcher) (Decision, []FrameResult, error) {
	frames := make([]market.Timeframe, len(tfs))
	copy(frames, tfs)
	market.SortTimeframes(frames)

	results := make([]FrameResult, 0, len(frames))
	for _, tf := range frames {
		bars, err := fetch(ctx, sym, tf, e.barWindow)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", sym.String()).Str("timeframe", tf.Key).
				Msg("bar fetch failed, skipping frame")
			continue
		}
		if len(bars) == 0 {
			e.log.Debug().Str("symbol", sym.String()).Str("timeframe", tf.Key).
				Msg("no bars, skipping frame")
			continue
		}
		op := e.factory(tf).Evaluate(tf, bars)
		results = append(results, FrameResult{Timeframe: tf, Opinion: op, Bars: len(bars)})
	}

	if len(results) == 0 {
		return Decision{Symbol: sym, Side: market.SideNone}, nil, ErrNoData
	}

	return e.fuse(sym, results), results, nil
}

func (e *Engine) fuse(sym market.Symbol, results []FrameResult) Decision {
	t := e.tuning

	var weightSum, probSum float64
	for _, r := range results {
		weightSum += r.Timeframe.Weight
		probSum += r.Timeframe.Weight * r.Opinion.Probability
	}
	weighted := probSum / weightSum

	variance := populationVariance(results)

	bonus := 0.0
	if allAgreeAbove(results) && weighted >= t.AgreementMinMean {
		// Lower variance earns a larger bonus, up to the cap.
		bonus = t.AgreementCap * math.Max(0, 1-variance/t.AgreementVarScale)
	}

	// Longest-timeframe veto: a lukewarm top frame drags down an otherwise
	// confident mean.
	penalty := 0.0
	longest := results[len(results)-1]
	if longest.Opinion.Probability < t.VetoFrameMax && weighted >= t.VetoMeanMin {
		penalty = t.VetoPenalty
	}

	final := clamp01(weighted + bonus - penalty)

	buyVotes := 0
	for _, r := range results {
		if r.Opinion.Side == market.SideBuy {
			buyVotes++
		}
	}
	voteShare := float64(buyVotes) / float64(len(results))

	side := market.SideNone
	if voteShare >= t.BuyVoteShare && final >= t.BuyProbMin {
		side = market.SideBuy
	}

	d := Decision{
		Symbol:      sym,
		Side:        side,
		Probability: final,
		SleepFor:    e.sleepFor(results, final),
		Votes:       make(map[string]float64, len(results)),
		Features:    make(map[string]float64, len(results)*2+3),
	}
	if side != market.SideNone {
		d.SizeMultiplier = sizeMultiplier(final, t.BuyProbMin)
	}

	// Only the shortest frame contributes contextual reasons; repeating
	// near-identical text per frame drowns the audit trail.
	d.Reasons = append(d.Reasons, results[0].Opinion.Reasons...)

	for _, r := range results {
		key := r.Timeframe.Key
		d.Votes[key] = r.Opinion.Probability * r.Opinion.Side.Sign()
		d.Features[key+".prob"] = r.Opinion.Probability
		d.Features[key+".bars"] = float64(r.Bars)
	}
	d.Features["weighted_mean"] = weighted
	d.Features["variance"] = variance
	d.Features["agreement_bonus"] = bonus
	d.Features["veto_penalty"] = penalty
	d.Features["vote_share"] = voteShare

	e.log.Debug().Str("symbol", sym.String()).Str("side", string(d.Side)).
		Float64("probability", final).Float64("bonus", bonus).Float64("penalty", penalty).
		Msg("consensus decision")

	return d
}

// sleepFor derives the poll interval: never longer than the most urgent
// frame wants, and shorter as conviction rises.
func (e *Engine) sleepFor(results []FrameResult, final float64) time.Duration {
	min := results[0].Opinion.SleepFor
	for _, r := range results[1:] {
		if r.Opinion.SleepFor < min {
			min = r.Opinion.SleepFor
		}
	}
	if min <= 0 {
		min = 30 * time.Second
	}

	// Scale from 1.0 at p<=0.5 down to 0.5 at p>=1.0, monotonically.
	scale := 1.0 - 0.5*clamp01((final-0.5)*2)
	d := time.Duration(float64(min) * scale)
	if d < 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// sizeMultiplier grows monotonically with final probability: 0.5 at the
// entry gate, 1.5 at certainty.
func sizeMultiplier(final, gate float64) float64 {
	if final <= gate {
		return 0.5
	}
	return 0.5 + clamp01((final-gate)/(1-gate))
}

// allAgreeAbove reports whether every frame sits on the same side of 0.5.
func allAgreeAbove(results []FrameResult) bool {
	above, below := 0, 0
	for _, r := range results {
		if r.Opinion.Probability > 0.5 {
			above++
		} else if r.Opinion.Probability < 0.5 {
			below++
		}
	}
	return above == len(results) || below == len(results)
}

func populationVariance(results []FrameResult) float64 {
	n := float64(len(results))
	var mean float64
	for _, r := range results {
		mean += r.Opinion.Probability
	}
	mean /= n

	var sum float64
	for _, r := range results {
		d := r.Opinion.Probability - mean
		sum += d * d
	}
	return sum / n
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// String renders a short audit line for logs and notifications.
func (d Decision) String() string {
	return fmt.Sprintf("%s %s p=%.3f size=%.2fx sleep=%s",
		d.Symbol, d.Side, d.Probability, d.SizeMultiplier, d.SleepFor)
}
