package store

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id                  TEXT PRIMARY KEY,
	symbol              TEXT NOT NULL,
	exchange            TEXT NOT NULL,
	side                TEXT NOT NULL,
	sector              TEXT NOT NULL,
	status              TEXT NOT NULL,
	entry               REAL NOT NULL,
	target              REAL NOT NULL,
	stop                REAL NOT NULL,
	risk_reward_ratio   REAL NOT NULL,
	fundamental_score   REAL NOT NULL,
	technical_score     REAL NOT NULL,
	macro_score         REAL NOT NULL,
	risk_reward_score   REAL NOT NULL,
	composite_score     REAL NOT NULL,
	capital_allocation  REAL NOT NULL,
	narrative_summary   TEXT NOT NULL DEFAULT '',
	rejection_reason    TEXT NOT NULL DEFAULT '',
	generated_at        DATETIME NOT NULL,
	expires_at          DATETIME NOT NULL,
	decided_at          DATETIME,
	executed_at         DATETIME,
	closed_at           DATETIME,
	broker_order_id     TEXT NOT NULL DEFAULT '',
	exit_price          REAL NOT NULL DEFAULT 0,
	exit_reason         TEXT NOT NULL DEFAULT '',
	realised_pnl        REAL NOT NULL DEFAULT 0,
	realised_pnl_pct    REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_generated_at ON trades(generated_at);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS open_positions (
	proposal_id             TEXT PRIMARY KEY,
	symbol                  TEXT NOT NULL,
	exchange                TEXT NOT NULL,
	sector                  TEXT NOT NULL DEFAULT '',
	entry_price             REAL NOT NULL,
	quantity                INTEGER NOT NULL,
	invested_amount         REAL NOT NULL,
	initial_stop            REAL NOT NULL,
	current_stop            REAL NOT NULL,
	target                  REAL NOT NULL,
	current_price           REAL NOT NULL,
	active                  INTEGER NOT NULL,
	entry_time              DATETIME NOT NULL,
	partial_profit_notified INTEGER NOT NULL DEFAULT 0,
	exit_price              REAL,
	exit_time               DATETIME,
	exit_reason             TEXT,
	realised_pnl            REAL,
	realised_pnl_pct        REAL
);

CREATE TABLE IF NOT EXISTS chat_offset (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	last_update_id INTEGER NOT NULL
);
`
