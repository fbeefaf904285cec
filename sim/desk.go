// Package sim is the paper broker: it keeps simulated positions, marks them
// to market on each price tick, and emits closes with realized PnL when a
// stop or target is crossed. No live venue is involved.
package sim

import (
	"sync"
	"time"

	"github.com/rustyeddy/tradecore/internal/id"
	"github.com/rustyeddy/tradecore/market"
)

// CloseReason states why a simulated position left the open set.
type CloseReason string

const (
	StoppedOut  CloseReason = "StoppedOut"
	TargetHit   CloseReason = "TargetHit"
	ManualClose CloseReason = "ManualClose"
)

// Position is one open simulated trade. Stop may be amended by the owning
// strategy loop (trailing); everything else is fixed at open.
type Position struct {
	ID       string
	Symbol   market.Symbol
	Side     market.Side
	Quantity float64
	Entry    float64
	Stop     float64
	Target   float64
	OpenedAt time.Time

	// Fee is charged once on entry and subtracted from realized PnL at
	// close. There is no separate exit fee.
	Fee float64
}

// Close is a terminal position record with realized PnL.
type Close struct {
	Position
	ExitPrice float64
	ClosedAt  time.Time
	Pnl       float64
	Reason    CloseReason
}

// Desk owns the open and closed position sets. All transitions happen under
// one mutex so a position's mark-to-market and its close are atomic with
// respect to other ticks on the same symbol.
type Desk struct {
	mu       sync.Mutex
	feeRate  float64
	balance  float64
	open     map[string]*Position
	closed   []Close
	realized float64
}

func NewDesk(balance, feeRate float64) *Desk {
	return &Desk{
		feeRate: feeRate,
		balance: balance,
		open:    make(map[string]*Position),
	}
}

// Open creates a simulated position filled at price. The entry fee is
// price*qty*feeRate.
func (d *Desk) Open(sym market.Symbol, side market.Side, qty, price, stop, target float64, now time.Time) Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	pos := &Position{
		ID:       id.New(),
		Symbol:   sym,
		Side:     side,
		Quantity: qty,
		Entry:    price,
		Stop:     stop,
		Target:   target,
		OpenedAt: now,
		Fee:      price * qty * d.feeRate,
	}
	d.open[pos.ID] = pos
	return *pos
}

// MarkToMarket re-evaluates every open position on sym against price and
// closes those whose stop or target is crossed. It is the only mutator of
// position state besides Open/AmendStop/CloseAll, and it is idempotent:
// repeating a price after a close produces no second close and no PnL change.
func (d *Desk) MarkToMarket(sym market.Symbol, price float64, now time.Time) []Close {
	d.mu.Lock()
	defer d.mu.Unlock()

	var closes []Close
	for _, p := range d.open {
		if p.Symbol != sym {
			continue
		}
		exit, reason, hit := checkExit(p, price)
		if !hit {
			continue
		}
		closes = append(closes, d.closeLocked(p, exit, now, reason))
	}
	return closes
}

// AmendStop moves a position's stop, e.g. for trailing. Returns false when
// the position is no longer open.
func (d *Desk) AmendStop(posID string, stop float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.open[posID]
	if !ok {
		return false
	}
	p.Stop = stop
	return true
}

// CloseAll flattens every open position at the prices the lookup returns.
// Positions without a price stay open.
func (d *Desk) CloseAll(price func(market.Symbol) (float64, bool), now time.Time) []Close {
	d.mu.Lock()
	defer d.mu.Unlock()

	var closes []Close
	for _, p := range d.open {
		px, ok := price(p.Symbol)
		if !ok {
			continue
		}
		closes = append(closes, d.closeLocked(p, px, now, ManualClose))
	}
	return closes
}

func (d *Desk) closeLocked(p *Position, exit float64, now time.Time, reason CloseReason) Close {
	pnl := (exit-p.Entry)*p.Quantity*p.Side.Sign() - p.Fee
	delete(d.open, p.ID)

	c := Close{
		Position:  *p,
		ExitPrice: exit,
		ClosedAt:  now,
		Pnl:       pnl,
		Reason:    reason,
	}
	d.closed = append(d.closed, c)
	d.realized += pnl
	d.balance += pnl
	return c
}

// Position returns the open position with the given ID.
func (d *Desk) Position(id string) (Position, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.open[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// OpenPositions returns a snapshot of the open set.
func (d *Desk) OpenPositions() []Position {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Position, 0, len(d.open))
	for _, p := range d.open {
		out = append(out, *p)
	}
	return out
}

// Closed returns a copy of the closed-trade list.
func (d *Desk) Closed() []Close {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Close, len(d.closed))
	copy(out, d.closed)
	return out
}

// Realized returns cumulative realized PnL.
func (d *Desk) Realized() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.realized
}

// Balance returns the account balance including realized PnL.
func (d *Desk) Balance() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balance
}

// checkExit reports whether price crosses the position's stop or target.
// Stops are checked before targets: on a bar that straddles both, the
// pessimistic outcome wins.
func checkExit(p *Position, price float64) (exit float64, reason CloseReason, hit bool) {
	if p.Side == market.SideBuy {
		if p.Stop > 0 && price <= p.Stop {
			return p.Stop, StoppedOut, true
		}
		if p.Target > 0 && price >= p.Target {
			return p.Target, TargetHit, true
		}
		return 0, "", false
	}

	if p.Stop > 0 && price >= p.Stop {
		return p.Stop, StoppedOut, true
	}
	if p.Target > 0 && price <= p.Target {
		return p.Target, TargetHit, true
	}
	return 0, "", false
}
