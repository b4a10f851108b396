package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
	Checksum    string    `db:"checksum"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create trades table",
			SQL: `
				CREATE TABLE IF NOT EXISTS trades (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tx_hash TEXT NOT NULL UNIQUE,
					block_number INTEGER NOT NULL,
					timestamp INTEGER NOT NULL,
					address TEXT NOT NULL,
					role TEXT NOT NULL,
					counterparty TEXT,
					order_hash TEXT,
					token_id TEXT NOT NULL,
					maker_asset_id TEXT,
					taker_asset_id TEXT,
					side TEXT NOT NULL,
					quantity REAL NOT NULL,
					price REAL,
					fee REAL DEFAULT 0,
					gas_used TEXT,
					gas_price TEXT,
					capture_delay_seconds INTEGER DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_trades_address ON trades(address);
				CREATE INDEX IF NOT EXISTS idx_trades_token_id ON trades(token_id);
				CREATE INDEX IF NOT EXISTS idx_trades_block_number ON trades(block_number);
				CREATE INDEX IF NOT EXISTS idx_trades_side ON trades(side);
				CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create positions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS positions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					market_id TEXT,
					current_quantity REAL NOT NULL DEFAULT 0,
					total_bought REAL NOT NULL DEFAULT 0,
					total_sold REAL NOT NULL DEFAULT 0,
					avg_buy_price REAL NOT NULL DEFAULT 0,
					total_buy_value REAL NOT NULL DEFAULT 0,
					total_sell_value REAL NOT NULL DEFAULT 0,
					realized_pnl REAL NOT NULL DEFAULT 0,
					first_trade_at DATETIME NOT NULL,
					last_trade_at DATETIME NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					settled_at DATETIME,
					settlement_price REAL,
					settlement_type TEXT,
					is_complete BOOLEAN,
					backfill_attempted BOOLEAN DEFAULT FALSE,
					backfill_date DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(address, token_id)
				);

				CREATE INDEX IF NOT EXISTS idx_positions_address ON positions(address);
				CREATE INDEX IF NOT EXISTS idx_positions_token_id ON positions(token_id);
				CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
				CREATE INDEX IF NOT EXISTS idx_positions_backfill ON positions(backfill_attempted);
			`,
		},
		{
			Version:     "003",
			Description: "Create markets and token_outcomes tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS markets (
					id TEXT PRIMARY KEY,
					question TEXT NOT NULL,
					slug TEXT,
					category TEXT,
					end_date DATETIME,
					active BOOLEAN DEFAULT TRUE,
					closed BOOLEAN DEFAULT FALSE,
					volume REAL DEFAULT 0,
					liquidity REAL DEFAULT 0,
					fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE TABLE IF NOT EXISTS token_outcomes (
					token_id TEXT PRIMARY KEY,
					market_id TEXT NOT NULL,
					outcome TEXT NOT NULL,
					price REAL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (market_id) REFERENCES markets (id)
				);

				CREATE INDEX IF NOT EXISTS idx_markets_active ON markets(active);
				CREATE INDEX IF NOT EXISTS idx_token_outcomes_market ON token_outcomes(market_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create copy_orders table",
			SQL: `
				CREATE TABLE IF NOT EXISTS copy_orders (
					id TEXT PRIMARY KEY,
					original_tx_hash TEXT NOT NULL,
					address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					side TEXT NOT NULL,
					quantity REAL NOT NULL,
					price REAL NOT NULL,
					order_id TEXT,
					status TEXT DEFAULT 'pending',
					error_message TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					executed_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_copy_orders_status ON copy_orders(status);
				CREATE INDEX IF NOT EXISTS idx_copy_orders_tx ON copy_orders(original_tx_hash);
			`,
		},
		{
			Version:     "005",
			Description: "Create system_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_state (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				-- Insert default scan cursor
				INSERT OR IGNORE INTO system_state (key, value) VALUES ('last_scanned_block', '0');
			`,
		},
		{
			Version:     "006",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					checksum TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create trades table",
			SQL: `
				CREATE TABLE IF NOT EXISTS trades (
					id BIGSERIAL PRIMARY KEY,
					tx_hash TEXT NOT NULL UNIQUE,
					block_number BIGINT NOT NULL,
					timestamp BIGINT NOT NULL,
					address TEXT NOT NULL,
					role TEXT NOT NULL,
					counterparty TEXT,
					order_hash TEXT,
					token_id TEXT NOT NULL,
					maker_asset_id TEXT,
					taker_asset_id TEXT,
					side TEXT NOT NULL,
					quantity DOUBLE PRECISION NOT NULL,
					price DOUBLE PRECISION,
					fee DOUBLE PRECISION DEFAULT 0,
					gas_used TEXT,
					gas_price TEXT,
					capture_delay_seconds BIGINT DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_trades_address ON trades(address);
				CREATE INDEX IF NOT EXISTS idx_trades_token_id ON trades(token_id);
				CREATE INDEX IF NOT EXISTS idx_trades_block_number ON trades(block_number);
				CREATE INDEX IF NOT EXISTS idx_trades_side ON trades(side);
				CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create positions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS positions (
					id BIGSERIAL PRIMARY KEY,
					address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					market_id TEXT,
					current_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
					total_bought DOUBLE PRECISION NOT NULL DEFAULT 0,
					total_sold DOUBLE PRECISION NOT NULL DEFAULT 0,
					avg_buy_price DOUBLE PRECISION NOT NULL DEFAULT 0,
					total_buy_value DOUBLE PRECISION NOT NULL DEFAULT 0,
					total_sell_value DOUBLE PRECISION NOT NULL DEFAULT 0,
					realized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
					first_trade_at TIMESTAMP WITH TIME ZONE NOT NULL,
					last_trade_at TIMESTAMP WITH TIME ZONE NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					settled_at TIMESTAMP WITH TIME ZONE,
					settlement_price DOUBLE PRECISION,
					settlement_type TEXT,
					is_complete BOOLEAN,
					backfill_attempted BOOLEAN DEFAULT FALSE,
					backfill_date TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					UNIQUE(address, token_id)
				);

				CREATE INDEX IF NOT EXISTS idx_positions_address ON positions(address);
				CREATE INDEX IF NOT EXISTS idx_positions_token_id ON positions(token_id);
				CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
				CREATE INDEX IF NOT EXISTS idx_positions_backfill ON positions(backfill_attempted);
			`,
		},
		{
			Version:     "003",
			Description: "Create markets and token_outcomes tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS markets (
					id TEXT PRIMARY KEY,
					question TEXT NOT NULL,
					slug TEXT,
					category TEXT,
					end_date TIMESTAMP WITH TIME ZONE,
					active BOOLEAN DEFAULT TRUE,
					closed BOOLEAN DEFAULT FALSE,
					volume DOUBLE PRECISION DEFAULT 0,
					liquidity DOUBLE PRECISION DEFAULT 0,
					fetched_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS token_outcomes (
					token_id TEXT PRIMARY KEY,
					market_id TEXT NOT NULL,
					outcome TEXT NOT NULL,
					price DOUBLE PRECISION DEFAULT 0,
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					CONSTRAINT fk_token_outcomes_market FOREIGN KEY (market_id) REFERENCES markets (id)
				);

				CREATE INDEX IF NOT EXISTS idx_markets_active ON markets(active);
				CREATE INDEX IF NOT EXISTS idx_token_outcomes_market ON token_outcomes(market_id);
			`,
		},
		{
			Version:     "004",
			Description: "Create copy_orders table",
			SQL: `
				CREATE TABLE IF NOT EXISTS copy_orders (
					id TEXT PRIMARY KEY,
					original_tx_hash TEXT NOT NULL,
					address TEXT NOT NULL,
					token_id TEXT NOT NULL,
					side TEXT NOT NULL,
					quantity DOUBLE PRECISION NOT NULL,
					price DOUBLE PRECISION NOT NULL,
					order_id TEXT,
					status TEXT DEFAULT 'pending',
					error_message TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					executed_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_copy_orders_status ON copy_orders(status);
				CREATE INDEX IF NOT EXISTS idx_copy_orders_tx ON copy_orders(original_tx_hash);
			`,
		},
		{
			Version:     "005",
			Description: "Create system_state table",
			SQL: `
				CREATE TABLE IF NOT EXISTS system_state (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				-- Insert default scan cursor
				INSERT INTO system_state (key, value) VALUES ('last_scanned_block', '0')
				ON CONFLICT (key) DO NOTHING;
			`,
		},
		{
			Version:     "006",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id SERIAL PRIMARY KEY,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					checksum TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
