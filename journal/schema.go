package journal

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	venue TEXT NOT NULL,
	market TEXT NOT NULL,
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price REAL NOT NULL,
	quantity REAL NOT NULL,
	stop REAL NOT NULL DEFAULT 0,
	target REAL NOT NULL DEFAULT 0,
	entry_time DATETIME NOT NULL,
	exit_price REAL NOT NULL DEFAULT 0,
	exit_time DATETIME,
	realized_pnl REAL NOT NULL DEFAULT 0,
	pnl_r REAL NOT NULL DEFAULT 0,
	hold_minutes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'open'
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
`
