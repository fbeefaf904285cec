package market

import (
	"errors"
	"sync"
	"time"
)

// ErrNoTick is returned when no price has been stored for a symbol.
var ErrNoTick = errors.New("no tick for symbol")

// Tick is a last-traded-price observation for a symbol.
type Tick struct {
	Symbol Symbol
	Price  float64
	Time   time.Time
}

// TickStore is a concurrency-safe cache of the latest tick per symbol.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[Symbol]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[Symbol]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(sym Symbol) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[sym]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}
