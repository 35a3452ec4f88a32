package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tradermonty/earningsgap/internal/logger"
)

// Store wraps a single SQLite connection under a single-writer
// discipline: SetMaxOpenConns(1) makes the connection pool itself the
// enforcement mechanism, the simplest faithful reading of "atomic under
// a single-writer discipline" for a SQLite-backed store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("state: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: migrate %s: %w", path, err)
	}
	logger.Infof("state: opened %s", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const dateLayout = "2006-01-02"

// InsertPosition records a newly opened position.
func (s *Store) InsertPosition(p Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions (ticker, entry_date, entry_price, target_shares, actual_shares,
			invested, stop_price, stop_order_id, score, grade, grade_source, is_open)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(ticker) DO UPDATE SET
			entry_date=excluded.entry_date, entry_price=excluded.entry_price,
			target_shares=excluded.target_shares, actual_shares=excluded.actual_shares,
			invested=excluded.invested, stop_price=excluded.stop_price,
			stop_order_id=excluded.stop_order_id, score=excluded.score,
			grade=excluded.grade, grade_source=excluded.grade_source,
			exit_date=NULL, exit_price=NULL, exit_reason='', is_open=1
	`, p.Ticker, p.EntryDate.Format(dateLayout), p.EntryPrice, p.TargetShares, p.ActualShares,
		p.Invested, p.StopPrice, p.StopOrderID, p.Score, p.Grade, p.GradeSource)
	if err != nil {
		return fmt.Errorf("state: insert position %s: %w", p.Ticker, err)
	}
	return nil
}

// ClosePosition marks ticker's open position closed with exit details.
func (s *Store) ClosePosition(ticker string, exit ExitInfo) error {
	res, err := s.db.Exec(`
		UPDATE positions SET exit_date=?, exit_price=?, exit_reason=?, is_open=0
		WHERE ticker=? AND is_open=1
	`, exit.ExitDate.Format(dateLayout), exit.ExitPrice, exit.ExitReason, ticker)
	if err != nil {
		return fmt.Errorf("state: close position %s: %w", ticker, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("state: close position %s: no open position", ticker)
	}
	return nil
}

// UpdateActualShares updates the filled share count for an open position.
func (s *Store) UpdateActualShares(ticker string, shares int) error {
	_, err := s.db.Exec(`UPDATE positions SET actual_shares=? WHERE ticker=? AND is_open=1`, shares, ticker)
	if err != nil {
		return fmt.Errorf("state: update actual shares %s: %w", ticker, err)
	}
	return nil
}

// UpdateStopOrderID records the protective stop order id for an open position.
func (s *Store) UpdateStopOrderID(ticker, orderID string) error {
	_, err := s.db.Exec(`UPDATE positions SET stop_order_id=? WHERE ticker=? AND is_open=1`, orderID, ticker)
	if err != nil {
		return fmt.Errorf("state: update stop order id %s: %w", ticker, err)
	}
	return nil
}

// OpenPositions lists every currently open position.
func (s *Store) OpenPositions() ([]Position, error) {
	rows, err := s.db.Query(`
		SELECT ticker, entry_date, entry_price, target_shares, actual_shares, invested,
			stop_price, stop_order_id, score, grade, grade_source
		FROM positions WHERE is_open=1
	`)
	if err != nil {
		return nil, fmt.Errorf("state: open positions: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var entryDate string
		var score sql.NullFloat64
		if err := rows.Scan(&p.Ticker, &entryDate, &p.EntryPrice, &p.TargetShares, &p.ActualShares,
			&p.Invested, &p.StopPrice, &p.StopOrderID, &score, &p.Grade, &p.GradeSource); err != nil {
			return nil, fmt.Errorf("state: scan position: %w", err)
		}
		p.EntryDate, _ = time.Parse(dateLayout, entryDate)
		if score.Valid {
			v := score.Float64
			p.Score = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertOrder inserts a new order, enforcing client-id uniqueness via
// ON CONFLICT DO NOTHING plus an explicit rows-affected check — the
// idempotency boundary the executor relies on before ever placing with
// the brokerage.
func (s *Store) InsertOrder(o Order) error {
	res, err := s.db.Exec(`
		INSERT INTO orders (client_id, brokerage_order_id, ticker, side, intent, trade_date,
			quantity, status, fill_price, filled_quantity, remaining_qty, reject_reason,
			planned_stop_price, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO NOTHING
	`, o.ClientID, o.BrokerageOrderID, o.Ticker, string(o.Side), string(o.Intent), o.TradeDate.Format(dateLayout),
		o.Quantity, string(o.Status), o.FillPrice, o.FilledQuantity, o.RemainingQty, o.RejectReason,
		o.PlannedStopPrice, o.RunID)
	if err != nil {
		return fmt.Errorf("state: insert order %s: %w", o.ClientID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("state: order %s already exists", o.ClientID)
	}
	return nil
}

// UpdateOrderStatus updates an order's status and fill bookkeeping by client id.
func (s *Store) UpdateOrderStatus(clientID string, status OrderStatus, fill FillUpdate) error {
	_, err := s.db.Exec(`
		UPDATE orders SET status=?, fill_price=?, filled_quantity=?, remaining_qty=?, reject_reason=?
		WHERE client_id=?
	`, string(status), fill.FillPrice, fill.FilledQuantity, fill.RemainingQty, fill.RejectReason, clientID)
	if err != nil {
		return fmt.Errorf("state: update order status %s: %w", clientID, err)
	}
	return nil
}

// OrderByClientID looks up an order by its client id.
func (s *Store) OrderByClientID(clientID string) (*Order, bool, error) {
	row := s.db.QueryRow(`
		SELECT client_id, brokerage_order_id, ticker, side, intent, trade_date, quantity, status,
			fill_price, filled_quantity, remaining_qty, reject_reason, planned_stop_price, run_id
		FROM orders WHERE client_id=?
	`, clientID)

	var o Order
	var tradeDate, side, intent, status string
	var fillPrice, plannedStop sql.NullFloat64
	err := row.Scan(&o.ClientID, &o.BrokerageOrderID, &o.Ticker, &side, &intent, &tradeDate, &o.Quantity,
		&status, &fillPrice, &o.FilledQuantity, &o.RemainingQty, &o.RejectReason, &plannedStop, &o.RunID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: order by client id %s: %w", clientID, err)
	}
	o.Side, o.Intent, o.Status = OrderSide(side), OrderIntent(intent), OrderStatus(status)
	o.TradeDate, _ = time.Parse(dateLayout, tradeDate)
	if fillPrice.Valid {
		v := fillPrice.Float64
		o.FillPrice = &v
	}
	if plannedStop.Valid {
		v := plannedStop.Float64
		o.PlannedStopPrice = &v
	}
	return &o, true, nil
}

// CountOrders counts orders for (date, intent).
func (s *Store) CountOrders(date time.Time, intent OrderIntent) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE trade_date=? AND intent=?`,
		date.Format(dateLayout), string(intent)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("state: count orders: %w", err)
	}
	return n, nil
}

// NonTerminalOrders lists orders for date not in a terminal status,
// optionally filtered by intent and/or side.
func (s *Store) NonTerminalOrders(date time.Time, intent *OrderIntent, side *OrderSide) ([]Order, error) {
	query := `
		SELECT client_id, brokerage_order_id, ticker, side, intent, trade_date, quantity, status,
			fill_price, filled_quantity, remaining_qty, reject_reason, planned_stop_price, run_id
		FROM orders WHERE trade_date=? AND status NOT IN ('filled','canceled','expired','rejected','done_for_day','suspended')
	`
	args := []any{date.Format(dateLayout)}
	if intent != nil {
		query += " AND intent=?"
		args = append(args, string(*intent))
	}
	if side != nil {
		query += " AND side=?"
		args = append(args, string(*side))
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("state: non-terminal orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var tradeDate, sideVal, intentVal, status string
		var fillPrice, plannedStop sql.NullFloat64
		if err := rows.Scan(&o.ClientID, &o.BrokerageOrderID, &o.Ticker, &sideVal, &intentVal, &tradeDate,
			&o.Quantity, &status, &fillPrice, &o.FilledQuantity, &o.RemainingQty, &o.RejectReason,
			&plannedStop, &o.RunID); err != nil {
			return nil, fmt.Errorf("state: scan order: %w", err)
		}
		o.Side, o.Intent, o.Status = OrderSide(sideVal), OrderIntent(intentVal), OrderStatus(status)
		o.TradeDate, _ = time.Parse(dateLayout, tradeDate)
		if fillPrice.Valid {
			v := fillPrice.Float64
			o.FillPrice = &v
		}
		if plannedStop.Valid {
			v := plannedStop.Float64
			o.PlannedStopPrice = &v
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// StartRun creates a new run record in the running state and returns its id.
func (s *Store) StartRun(tradeDate time.Time, phase RunPhase) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, trade_date, phase, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, tradeDate.Format(dateLayout), string(phase), string(RunRunning), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("state: start run: %w", err)
	}
	return runID, nil
}

// CompleteRun finalizes a run record with its terminal status and counters.
func (s *Store) CompleteRun(runID string, status RunStatus, counters RunCounters, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status=?, exits_executed=?, entries_executed=?, skipped=?,
			error_message=?, completed_at=?
		WHERE run_id=?
	`, string(status), counters.ExitsExecuted, counters.EntriesExecuted, counters.Skipped,
		errMsg, time.Now().UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("state: complete run %s: %w", runID, err)
	}
	return nil
}

// ShadowOpen records a new shadow-book position.
func (s *Store) ShadowOpen(p ShadowPosition) error {
	_, err := s.db.Exec(`
		INSERT INTO shadow_positions (ticker, entry_date, entry_price, shares, is_open)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(ticker) DO UPDATE SET
			entry_date=excluded.entry_date, entry_price=excluded.entry_price,
			shares=excluded.shares, exit_date=NULL, exit_price=NULL, exit_reason='', is_open=1
	`, p.Ticker, p.EntryDate.Format(dateLayout), p.EntryPrice, p.Shares)
	if err != nil {
		return fmt.Errorf("state: shadow open %s: %w", p.Ticker, err)
	}
	return nil
}

// ShadowClose closes a shadow-book position with theoretical exit details.
func (s *Store) ShadowClose(ticker string, exit ExitInfo) error {
	_, err := s.db.Exec(`
		UPDATE shadow_positions SET exit_date=?, exit_price=?, exit_reason=?, is_open=0
		WHERE ticker=? AND is_open=1
	`, exit.ExitDate.Format(dateLayout), exit.ExitPrice, exit.ExitReason, ticker)
	if err != nil {
		return fmt.Errorf("state: shadow close %s: %w", ticker, err)
	}
	return nil
}

// ShadowPositions lists every currently open shadow position.
func (s *Store) ShadowPositions() ([]ShadowPosition, error) {
	rows, err := s.db.Query(`SELECT ticker, entry_date, entry_price, shares FROM shadow_positions WHERE is_open=1`)
	if err != nil {
		return nil, fmt.Errorf("state: shadow positions: %w", err)
	}
	defer rows.Close()

	var out []ShadowPosition
	for rows.Next() {
		var p ShadowPosition
		var entryDate string
		if err := rows.Scan(&p.Ticker, &entryDate, &p.EntryPrice, &p.Shares); err != nil {
			return nil, fmt.Errorf("state: scan shadow position: %w", err)
		}
		p.EntryDate, _ = time.Parse(dateLayout, entryDate)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AppendShadowSignal records the raw shadow-strategy signal blob, append-only.
func (s *Store) AppendShadowSignal(blob []byte, tradeDate time.Time, strategy string) error {
	_, err := s.db.Exec(`
		INSERT INTO shadow_signals (trade_date, strategy, blob, created_at)
		VALUES (?, ?, ?, ?)
	`, tradeDate.Format(dateLayout), strategy, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("state: append shadow signal: %w", err)
	}
	return nil
}

// KillSwitch reports whether the kill switch is currently engaged.
func (s *Store) KillSwitch() (bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM system_config WHERE key='kill_switch'`).Scan(&value)
	if err != nil {
		return false, fmt.Errorf("state: kill switch: %w", err)
	}
	return value == "1", nil
}

// SetKillSwitch sets the kill switch state.
func (s *Store) SetKillSwitch(on bool) error {
	value := "0"
	if on {
		value = "1"
	}
	_, err := s.db.Exec(`
		INSERT INTO system_config (key, value) VALUES ('kill_switch', ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, value)
	if err != nil {
		return fmt.Errorf("state: set kill switch: %w", err)
	}
	if on {
		logger.Criticalf("state: kill switch engaged")
	}
	return nil
}
