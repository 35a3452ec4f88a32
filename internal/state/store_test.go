package state

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(s string) time.Time {
	d, _ := time.Parse(dateLayout, s)
	return d
}

func TestInsertAndCloseAndReopenPosition(t *testing.T) {
	s := openTestStore(t)

	p := Position{
		Ticker: "AAPL", EntryDate: day("2025-10-01"), EntryPrice: 100,
		TargetShares: 10, ActualShares: 10, Invested: 1000, StopPrice: 90,
		Grade: "A", GradeSource: "html",
	}
	if err := s.InsertPosition(p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	open, err := s.OpenPositions()
	if err != nil || len(open) != 1 || open[0].Ticker != "AAPL" {
		t.Fatalf("expected one open position, got %v err=%v", open, err)
	}

	if err := s.ClosePosition("AAPL", ExitInfo{ExitDate: day("2025-10-10"), ExitPrice: 95, ExitReason: "max_holding"}); err != nil {
		t.Fatalf("close: %v", err)
	}
	open, err = s.OpenPositions()
	if err != nil || len(open) != 0 {
		t.Fatalf("expected no open positions after close, got %v err=%v", open, err)
	}

	// Re-entering the same ticker should upsert cleanly rather than conflict.
	p.EntryDate = day("2025-11-01")
	if err := s.InsertPosition(p); err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	open, err = s.OpenPositions()
	if err != nil || len(open) != 1 {
		t.Fatalf("expected one re-opened position, got %v err=%v", open, err)
	}
}

func TestCloseNonOpenPositionErrors(t *testing.T) {
	s := openTestStore(t)
	if err := s.ClosePosition("MISSING", ExitInfo{ExitDate: day("2025-10-10"), ExitPrice: 1}); err == nil {
		t.Fatalf("expected error closing a position that was never opened")
	}
}

func TestUpdateActualSharesAndStopOrderID(t *testing.T) {
	s := openTestStore(t)
	p := Position{Ticker: "MSFT", EntryDate: day("2025-10-01"), EntryPrice: 200, TargetShares: 5, Invested: 1000, StopPrice: 180}
	if err := s.InsertPosition(p); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.UpdateActualShares("MSFT", 4); err != nil {
		t.Fatalf("update shares: %v", err)
	}
	if err := s.UpdateStopOrderID("MSFT", "stop-123"); err != nil {
		t.Fatalf("update stop order id: %v", err)
	}
	open, err := s.OpenPositions()
	if err != nil || len(open) != 1 || open[0].ActualShares != 4 || open[0].StopOrderID != "stop-123" {
		t.Fatalf("unexpected state after updates: %+v err=%v", open, err)
	}
}

func TestInsertOrderRejectsDuplicateClientID(t *testing.T) {
	s := openTestStore(t)
	o := Order{
		ClientID: "2025-10-01_AAPL_entry_buy", Ticker: "AAPL", Side: SideBuy, Intent: IntentEntry,
		TradeDate: day("2025-10-01"), Quantity: 10, Status: OrderPending,
	}
	if err := s.InsertOrder(o); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if err := s.InsertOrder(o); err == nil {
		t.Fatalf("expected duplicate client id to error")
	}

	got, ok, err := s.OrderByClientID(o.ClientID)
	if err != nil || !ok || got.Ticker != "AAPL" || got.Status != OrderPending {
		t.Fatalf("unexpected order lookup: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestUpdateOrderStatusAndNonTerminalFiltering(t *testing.T) {
	s := openTestStore(t)
	o := Order{
		ClientID: "2025-10-01_AAPL_entry_buy", Ticker: "AAPL", Side: SideBuy, Intent: IntentEntry,
		TradeDate: day("2025-10-01"), Quantity: 10, Status: OrderPending,
	}
	if err := s.InsertOrder(o); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	stop := Order{
		ClientID: "2025-10-01_AAPL_stop_sell", Ticker: "AAPL", Side: SideSell, Intent: IntentStop,
		TradeDate: day("2025-10-01"), Quantity: 10, Status: OrderAccepted,
	}
	if err := s.InsertOrder(stop); err != nil {
		t.Fatalf("insert stop order: %v", err)
	}

	pending, err := s.NonTerminalOrders(day("2025-10-01"), nil, nil)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 non-terminal orders, got %v err=%v", pending, err)
	}

	fillPrice := 101.5
	if err := s.UpdateOrderStatus(o.ClientID, OrderFilled, FillUpdate{FillPrice: &fillPrice, FilledQuantity: 10}); err != nil {
		t.Fatalf("update status: %v", err)
	}

	pending, err = s.NonTerminalOrders(day("2025-10-01"), nil, nil)
	if err != nil || len(pending) != 1 || pending[0].ClientID != stop.ClientID {
		t.Fatalf("expected only the stop order to remain non-terminal, got %v err=%v", pending, err)
	}

	entryIntent := IntentEntry
	count, err := s.CountOrders(day("2025-10-01"), entryIntent)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 entry order, got %d err=%v", count, err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.StartRun(day("2025-10-01"), PhaseExecute)
	if err != nil || runID == "" {
		t.Fatalf("start run: %v", err)
	}
	if err := s.CompleteRun(runID, RunCompleted, RunCounters{ExitsExecuted: 1, EntriesExecuted: 2}, ""); err != nil {
		t.Fatalf("complete run: %v", err)
	}
}

func TestShadowBookLifecycle(t *testing.T) {
	s := openTestStore(t)
	if err := s.ShadowOpen(ShadowPosition{Ticker: "TSLA", EntryDate: day("2025-10-01"), EntryPrice: 250, Shares: 4}); err != nil {
		t.Fatalf("shadow open: %v", err)
	}
	open, err := s.ShadowPositions()
	if err != nil || len(open) != 1 {
		t.Fatalf("expected one shadow position, got %v err=%v", open, err)
	}
	if err := s.ShadowClose("TSLA", ExitInfo{ExitDate: day("2025-10-15"), ExitPrice: 260, ExitReason: "trend_break"}); err != nil {
		t.Fatalf("shadow close: %v", err)
	}
	open, err = s.ShadowPositions()
	if err != nil || len(open) != 0 {
		t.Fatalf("expected no open shadow positions, got %v err=%v", open, err)
	}
	if err := s.AppendShadowSignal([]byte(`{"ticker":"TSLA"}`), day("2025-10-01"), "weekly_ema"); err != nil {
		t.Fatalf("append shadow signal: %v", err)
	}
}

func TestKillSwitchDefaultsDisengaged(t *testing.T) {
	s := openTestStore(t)
	on, err := s.KillSwitch()
	if err != nil || on {
		t.Fatalf("expected kill switch disengaged by default, got %v err=%v", on, err)
	}
	if err := s.SetKillSwitch(true); err != nil {
		t.Fatalf("set kill switch: %v", err)
	}
	on, err = s.KillSwitch()
	if err != nil || !on {
		t.Fatalf("expected kill switch engaged, got %v err=%v", on, err)
	}
}
