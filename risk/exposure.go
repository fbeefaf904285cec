package risk

import "sync"

// ExposureBook tracks cumulative risk-percent in use per block plus the
// total and the open trade count. It is the single shared mutable resource
// between concurrently evaluated symbols; every CanAdd/Add/Release is
// serialized behind one mutex so two trades cannot jointly exceed the cap.
type ExposureBook struct {
	mu sync.Mutex

	maxTotalPct float64
	maxTrades   int

	blocks   map[string]float64
	totalPct float64
	trades   int
}

func NewExposureBook(maxTotalPct float64, maxTrades int) *ExposureBook {
	return &ExposureBook{
		maxTotalPct: maxTotalPct,
		maxTrades:   maxTrades,
		blocks:      make(map[string]float64),
	}
}

// CanAdd reports whether a trade risking riskPct in block fits under the
// caps: open trade count, portfolio total, and a per-block ceiling at half
// the portfolio cap. The answer is advisory; callers that go on to place
// an order must claim the exposure with TryAdd instead.
func (b *ExposureBook) CanAdd(block string, riskPct float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fitsLocked(block, riskPct)
}

// TryAdd checks the caps and claims riskPct against block in one step
// under the lock, so two concurrent callers can never both pass the check
// and jointly exceed a cap. A claim whose order is not filled must be
// returned with Release.
func (b *ExposureBook) TryAdd(block string, riskPct float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fitsLocked(block, riskPct) {
		return false
	}
	b.blocks[block] += riskPct
	b.totalPct += riskPct
	b.trades++
	return true
}

func (b *ExposureBook) fitsLocked(block string, riskPct float64) bool {
	if b.trades >= b.maxTrades {
		return false
	}
	if b.totalPct+riskPct > b.maxTotalPct {
		return false
	}
	if b.blocks[block]+riskPct > b.maxTotalPct/2 {
		return false
	}
	return true
}

// Add records riskPct against block. Callers check CanAdd first; Add is
// unconditional so a fill is always accounted for once committed.
func (b *ExposureBook) Add(block string, riskPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[block] += riskPct
	b.totalPct += riskPct
	b.trades++
}

// Release returns riskPct to the book when a trade closes.
func (b *ExposureBook) Release(block string, riskPct float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks[block] -= riskPct
	if b.blocks[block] < 0 {
		b.blocks[block] = 0
	}
	b.totalPct -= riskPct
	if b.totalPct < 0 {
		b.totalPct = 0
	}
	if b.trades > 0 {
		b.trades--
	}
}

// ResetDay clears all accumulated exposure at the start of a trading day.
func (b *ExposureBook) ResetDay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = make(map[string]float64)
	b.totalPct = 0
	b.trades = 0
}

// InUse returns the current total risk-percent and open trade count.
func (b *ExposureBook) InUse() (totalPct float64, trades int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalPct, b.trades
}
