package report

const schema = `
CREATE TABLE IF NOT EXISTS days (
	run_id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	reference_symbol TEXT NOT NULL,
	captured_open TEXT,
	decision_price TEXT,
	chosen_symbol TEXT,
	signal TEXT,
	final_state TEXT NOT NULL,
	outcome TEXT,
	equity TEXT,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	date TEXT NOT NULL,
	time DATETIME NOT NULL,
	action TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	price_source TEXT NOT NULL,
	order_id TEXT,
	client_order_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(date);
`
