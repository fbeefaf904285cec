package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

// CSVLedger appends entry and exit rows to one file. Records also live in
// an in-process map so Get and the single-transition invariant work for
// the lifetime of the run; the file itself is append-only audit output.
type CSVLedger struct {
	mu   sync.Mutex
	w    *csv.Writer
	file *os.File
	recs map[string]*Record
}

func NewCSV(path string) (*CSVLedger, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(file)
	header := []string{
		"kind", "trade_id", "venue", "market", "symbol", "timeframe", "side",
		"entry_price", "quantity", "stop", "target", "entry_time",
		"exit_price", "exit_time", "realized_pnl", "pnl_r", "hold_minutes", "status",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return &CSVLedger{w: w, file: file, recs: make(map[string]*Record)}, nil
}

func (l *CSVLedger) LogEntry(e Entry) (TradeID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := NewTradeID(e.Symbol, e.Timeframe, e.EntryTime)
	rec := &Record{ID: id, Entry: e, Status: StatusOpen}
	rec.EntryTime = id.EntryTime
	l.recs[id.String()] = rec

	l.write("entry", rec)
	return id, l.w.Error()
}

func (l *CSVLedger) LogExit(id TradeID, exitPrice float64, status Status, exitTime time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.recs[id.String()]
	if !ok {
		return ErrNotFound
	}
	if rec.Status != StatusOpen {
		return nil
	}

	finalize(rec, exitPrice, status, exitTime)
	l.write("exit", rec)
	return l.w.Error()
}

func (l *CSVLedger) Get(id TradeID) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.recs[id.String()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (l *CSVLedger) write(kind string, rec *Record) {
	exitTime := ""
	if !rec.ExitTime.IsZero() {
		exitTime = rec.ExitTime.Format(time.RFC3339)
	}
	l.w.Write([]string{
		kind,
		rec.ID.String(),
		rec.Venue,
		rec.Market,
		rec.Symbol.String(),
		rec.Timeframe,
		string(rec.Side),
		f(rec.EntryPrice),
		f(rec.Quantity),
		f(rec.Stop),
		f(rec.Target),
		rec.EntryTime.Format(time.RFC3339),
		f(rec.ExitPrice),
		exitTime,
		f(rec.RealizedPnl),
		f(rec.PnlR),
		strconv.Itoa(rec.HoldMinutes),
		string(rec.Status),
	})
	l.w.Flush()
}

func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.file.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
