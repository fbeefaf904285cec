package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/tradecore/market"
)

// SQLiteLedger is the primary ledger backend. The open->terminal invariant
// is enforced in SQL: the exit UPDATE matches only rows still open, so a
// second exit for the same trade touches zero rows.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) LogEntry(e Entry) (TradeID, error) {
	id := NewTradeID(e.Symbol, e.Timeframe, e.EntryTime)
	_, err := l.db.Exec(`
		INSERT INTO trades
		(trade_id, venue, market, symbol, timeframe, side, entry_price, quantity, stop, target, entry_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
		id.String(), e.Venue, e.Market, e.Symbol.String(), e.Timeframe, string(e.Side),
		e.EntryPrice, e.Quantity, e.Stop, e.Target, id.EntryTime,
	)
	if err != nil {
		return TradeID{}, fmt.Errorf("log entry %s: %w", id, err)
	}
	return id, nil
}

func (l *SQLiteLedger) LogExit(id TradeID, exitPrice float64, status Status, exitTime time.Time) error {
	rec, err := l.Get(id)
	if err != nil {
		return err
	}
	if rec.Status != StatusOpen {
		return nil
	}

	finalize(&rec, exitPrice, status, exitTime)

	res, err := l.db.Exec(`
		UPDATE trades
		SET exit_price = ?, exit_time = ?, realized_pnl = ?, pnl_r = ?, hold_minutes = ?, status = ?
		WHERE trade_id = ? AND status = 'open'`,
		rec.ExitPrice, rec.ExitTime, rec.RealizedPnl, rec.PnlR, rec.HoldMinutes, string(rec.Status),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("log exit %s: %w", id, err)
	}
	// Zero rows means another writer closed it first; that is still a no-op.
	_, _ = res.RowsAffected()
	return nil
}

func (l *SQLiteLedger) Get(id TradeID) (Record, error) {
	row := l.db.QueryRow(`
		SELECT trade_id, venue, market, symbol, timeframe, side, entry_price, quantity,
		       stop, target, entry_time, exit_price, exit_time, realized_pnl, pnl_r,
		       hold_minutes, status
		FROM trades WHERE trade_id = ?`, id.String())

	var (
		rec      Record
		tradeID  string
		symbol   string
		side     string
		status   string
		exitTime sql.NullTime
	)
	err := row.Scan(&tradeID, &rec.Venue, &rec.Market, &symbol, &rec.Timeframe, &side,
		&rec.EntryPrice, &rec.Quantity, &rec.Stop, &rec.Target, &rec.EntryTime,
		&rec.ExitPrice, &exitTime, &rec.RealizedPnl, &rec.PnlR, &rec.HoldMinutes, &status)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id, err)
	}

	rec.ID, err = ParseTradeID(tradeID)
	if err != nil {
		return Record{}, err
	}
	rec.Symbol = market.Symbol(symbol)
	rec.Side = market.Side(side)
	rec.Status = Status(status)
	if exitTime.Valid {
		rec.ExitTime = exitTime.Time
	}
	return rec, nil
}

// ListByStatus returns records in a given state, newest entry first.
func (l *SQLiteLedger) ListByStatus(status Status) ([]Record, error) {
	rows, err := l.db.Query(`SELECT trade_id FROM trades WHERE status = ? ORDER BY entry_time DESC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := ParseTradeID(s)
		if err != nil {
			return nil, err
		}
		rec, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListClosedBetween returns terminal records whose exit falls in
// [start, end), oldest exit first.
func (l *SQLiteLedger) ListClosedBetween(start, end time.Time) ([]Record, error) {
	rows, err := l.db.Query(`
		SELECT trade_id FROM trades
		WHERE status != 'open' AND exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		id, err := ParseTradeID(s)
		if err != nil {
			return nil, err
		}
		rec, err := l.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
