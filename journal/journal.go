// Package journal is the trade ledger: an entry row written once when a
// trade opens and updated exactly once when it exits. Ledger failures are
// the caller's to log and swallow; they never abort a committed decision.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/tradecore/market"
)

// Status is the lifecycle state of a ledger record. A record transitions
// open -> {closed|stopped|target} exactly once; re-applying an exit to an
// already-terminal record is a no-op.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusStopped Status = "stopped"
	StatusTarget  Status = "target"
)

// ErrNotFound is returned by Get for an unknown trade ID.
var ErrNotFound = errors.New("trade not found")

// Entry is the opening half of a ledger record.
type Entry struct {
	Venue      string
	Market     string
	Symbol     market.Symbol
	Timeframe  string
	Side       market.Side
	EntryPrice float64
	Quantity   float64
	Stop       float64
	Target     float64
	EntryTime  time.Time
	Meta       map[string]string
}

// Record is a full ledger row.
type Record struct {
	ID TradeID
	Entry
	ExitPrice   float64
	ExitTime    time.Time
	RealizedPnl float64
	PnlR        float64
	HoldMinutes int
	Status      Status
}

// Ledger is the persistence contract.
type Ledger interface {
	// LogEntry appends an open record and returns its stable ID.
	LogEntry(e Entry) (TradeID, error)
	// LogExit closes the record. Applying an exit to a record that is
	// already terminal is a no-op, not an error.
	LogExit(id TradeID, exitPrice float64, status Status, exitTime time.Time) error
	Get(id TradeID) (Record, error)
	Close() error
}

// finalize computes the exit-side derived fields shared by all backends.
func finalize(rec *Record, exitPrice float64, status Status, exitTime time.Time) {
	rec.ExitPrice = exitPrice
	rec.ExitTime = exitTime
	rec.Status = status
	rec.RealizedPnl = (exitPrice - rec.EntryPrice) * rec.Quantity * rec.Side.Sign()
	if rec.Stop > 0 {
		if ru := abs(rec.EntryPrice - rec.Stop); ru > 0 {
			rec.PnlR = (exitPrice - rec.EntryPrice) * rec.Side.Sign() / ru
		}
	}
	rec.HoldMinutes = int(exitTime.Sub(rec.EntryTime).Minutes())
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
