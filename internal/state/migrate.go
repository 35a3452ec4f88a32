package state

import (
	"database/sql"
	"fmt"
	"strings"
)

// migrate applies versioned, append-only schema migrations. Each block
// is guarded by the schema_version table and only ever adds tables or
// columns, following the "if version < N { ...; bump to N }" pattern of
// append-only schema evolution. New migrations append a new `if version < N`
// block below; never rewrite or remove an existing one.
func migrate(db *sql.DB) error {
	version := 0
	db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS positions (
				ticker        TEXT PRIMARY KEY,
				entry_date    TEXT NOT NULL,
				entry_price   REAL NOT NULL,
				target_shares INTEGER NOT NULL,
				actual_shares INTEGER NOT NULL,
				invested      REAL NOT NULL,
				stop_price    REAL NOT NULL,
				stop_order_id TEXT NOT NULL DEFAULT '',
				score         REAL,
				grade         TEXT NOT NULL DEFAULT '',
				grade_source  TEXT NOT NULL DEFAULT '',
				exit_date     TEXT,
				exit_price    REAL,
				exit_reason   TEXT NOT NULL DEFAULT '',
				is_open       INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_open);

			CREATE TABLE IF NOT EXISTS orders (
				client_id         TEXT PRIMARY KEY,
				brokerage_order_id TEXT NOT NULL DEFAULT '',
				ticker            TEXT NOT NULL,
				side              TEXT NOT NULL,
				intent            TEXT NOT NULL,
				trade_date        TEXT NOT NULL,
				quantity          INTEGER NOT NULL,
				status            TEXT NOT NULL,
				fill_price        REAL,
				filled_quantity   INTEGER NOT NULL DEFAULT 0,
				remaining_qty     INTEGER NOT NULL DEFAULT 0,
				reject_reason     TEXT NOT NULL DEFAULT '',
				run_id            TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_orders_date_intent ON orders(trade_date, intent);
			CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

			CREATE TABLE IF NOT EXISTS runs (
				run_id     TEXT PRIMARY KEY,
				trade_date TEXT NOT NULL,
				phase      TEXT NOT NULL,
				status     TEXT NOT NULL,
				signals_file TEXT NOT NULL DEFAULT '',
				exits_executed   INTEGER NOT NULL DEFAULT 0,
				entries_executed INTEGER NOT NULL DEFAULT 0,
				skipped          INTEGER NOT NULL DEFAULT 0,
				error_message    TEXT NOT NULL DEFAULT '',
				started_at  TEXT NOT NULL,
				completed_at TEXT
			);

			CREATE TABLE IF NOT EXISTS shadow_positions (
				ticker      TEXT PRIMARY KEY,
				entry_date  TEXT NOT NULL,
				entry_price REAL NOT NULL,
				shares      INTEGER NOT NULL,
				exit_date   TEXT,
				exit_price  REAL,
				exit_reason TEXT NOT NULL DEFAULT '',
				is_open     INTEGER NOT NULL DEFAULT 1
			);

			CREATE TABLE IF NOT EXISTS shadow_signals (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				trade_date TEXT NOT NULL,
				strategy   TEXT NOT NULL,
				blob       BLOB NOT NULL,
				created_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS system_config (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
			INSERT OR IGNORE INTO system_config (key, value) VALUES ('kill_switch', '0');

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	if version < 2 {
		if err := ensureTableColumn(db, "orders", "planned_stop_price", "REAL"); err != nil {
			return fmt.Errorf("migration v2 add orders.planned_stop_price: %w", err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (2);`); err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
	}

	return nil
}

func ensureTableColumn(db *sql.DB, table, column, def string) error {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + def)
	return err
}
