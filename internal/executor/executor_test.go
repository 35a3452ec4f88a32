package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/signalgen"
	"github.com/tradermonty/earningsgap/internal/state"
)

func openTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dayConst(s string) time.Time {
	d, _ := time.Parse(dateLayout, s)
	return d
}

// offHours is a fixed pre-market timestamp so entry time guard tests
// never depend on the wall clock the suite happens to run under.
func offHours() time.Time {
	loc, _ := time.LoadLocation("America/New_York")
	return time.Date(2025, 10, 6, 6, 0, 0, 0, loc)
}

func TestRunRefusesWrongStrategy(t *testing.T) {
	store := openTestStore(t)
	fb := broker.NewFakeBroker()
	exec := New(fb, store, DefaultConfig(ModeDay))

	signals := &signalgen.SignalFile{TradeDate: "2025-10-06", Strategy: signalgen.StrategyNWL4}
	if _, err := exec.Run(context.Background(), signals, PhaseAll); err == nil {
		t.Fatalf("expected ErrWrongStrategy")
	}
}

func TestRunRefusesAllPhaseUnderOPG(t *testing.T) {
	store := openTestStore(t)
	fb := broker.NewFakeBroker()
	cfg := DefaultConfig(ModeOPG)
	exec := New(fb, store, cfg)

	signals := &signalgen.SignalFile{TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10}
	if _, err := exec.Run(context.Background(), signals, PhaseAll); err == nil {
		t.Fatalf("expected ErrOPGAllPhase")
	}
}

func TestRunBlockedByKillSwitch(t *testing.T) {
	store := openTestStore(t)
	if err := store.SetKillSwitch(true); err != nil {
		t.Fatalf("set kill switch: %v", err)
	}
	fb := broker.NewFakeBroker()
	exec := New(fb, store, DefaultConfig(ModeDay))

	signals := &signalgen.SignalFile{TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10}
	if _, err := exec.Run(context.Background(), signals, PhasePlace); err == nil {
		t.Fatalf("expected ErrKillSwitch")
	}
}

func TestPhaseAPlacesExitSellAndClosesOnFill(t *testing.T) {
	store := openTestStore(t)
	if err := store.InsertPosition(state.Position{
		Ticker: "AAPL", EntryDate: dayConst("2025-10-01"), EntryPrice: 100,
		TargetShares: 10, ActualShares: 10, Invested: 1000, StopPrice: 90,
	}); err != nil {
		t.Fatalf("insert position: %v", err)
	}

	fb := broker.NewFakeBroker()
	fb.BuyingPowerUS = 100000

	cfg := DefaultConfig(ModeDay)
	cfg.SellPollTimeout = 200 * time.Millisecond
	cfg.SellPollInterval = 10 * time.Millisecond
	cfg.Now = offHours
	exec := New(fb, store, cfg)

	signals := &signalgen.SignalFile{
		TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10,
		Exits: []signalgen.ExitEntry{{Ticker: "AAPL", Reason: "trend_break", Qty: 10, EntryPrice: 100}},
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		fb.Fill(clientOrderID("2025-10-06", "AAPL", kindExitSell), 105, 10)
	}()

	summary, err := exec.Run(context.Background(), signals, PhaseAll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.ExitsExecuted != 1 {
		t.Fatalf("expected 1 exit executed, got %d", summary.ExitsExecuted)
	}

	open, err := store.OpenPositions()
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	for _, p := range open {
		if p.Ticker == "AAPL" {
			t.Fatalf("expected AAPL position closed")
		}
	}
}

func TestPhaseAIdempotentOnExistingExitOrder(t *testing.T) {
	store := openTestStore(t)
	if err := store.InsertPosition(state.Position{
		Ticker: "MSFT", EntryDate: dayConst("2025-10-01"), EntryPrice: 50,
		TargetShares: 10, ActualShares: 10, Invested: 500, StopPrice: 45,
	}); err != nil {
		t.Fatalf("insert position: %v", err)
	}
	clientID := clientOrderID("2025-10-06", "MSFT", kindExitSell)
	if err := store.InsertOrder(state.Order{
		ClientID: clientID, BrokerageOrderID: "bo-1", Ticker: "MSFT",
		Side: state.SideSell, Intent: state.IntentExit, TradeDate: dayConst("2025-10-06"),
		Quantity: 10, Status: state.OrderAccepted,
	}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	fb := broker.NewFakeBroker()
	cfg := DefaultConfig(ModeDay)
	cfg.SellPollTimeout = 20 * time.Millisecond
	cfg.SellPollInterval = 5 * time.Millisecond
	exec := New(fb, store, cfg)

	signals := &signalgen.SignalFile{
		TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10,
		Exits: []signalgen.ExitEntry{{Ticker: "MSFT", Reason: "trend_break", Qty: 10, EntryPrice: 50}},
	}
	summary, err := exec.Run(context.Background(), signals, PhasePlace)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.ExitsExecuted != 0 {
		t.Fatalf("expected idempotent skip, got %d exits executed", summary.ExitsExecuted)
	}
	if len(fb.Orders) != 0 {
		t.Fatalf("expected no new broker order placed, got %d", len(fb.Orders))
	}
}

func TestPhaseDEntersOPGBuyWithPlannedStop(t *testing.T) {
	store := openTestStore(t)
	fb := broker.NewFakeBroker()
	fb.BuyingPowerUS = 100000

	cfg := DefaultConfig(ModeOPG)
	cfg.Now = offHours
	exec := New(fb, store, cfg)

	score := 80.0
	signals := &signalgen.SignalFile{
		TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10,
		Entries: []signalgen.EntryEntry{{Ticker: "NVDA", Side: "buy", Qty: 5, Score: &score, Grade: "A", StopPrice: 90}},
	}

	summary, err := exec.Run(context.Background(), signals, PhasePlace)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.EntriesExecuted != 1 {
		t.Fatalf("expected 1 entry executed, got %d", summary.EntriesExecuted)
	}

	order, found, err := store.OrderByClientID(clientOrderID("2025-10-06", "NVDA", kindEntryBuy))
	if err != nil {
		t.Fatalf("order lookup: %v", err)
	}
	if !found {
		t.Fatalf("expected entry order recorded")
	}
	if order.PlannedStopPrice == nil || *order.PlannedStopPrice != 90 {
		t.Fatalf("expected planned stop price 90, got %+v", order.PlannedStopPrice)
	}
}

func TestPhaseFPollOPGPlacesStopOnFillAndTripsKillSwitchOnFailure(t *testing.T) {
	store := openTestStore(t)
	stopPrice := 90.0
	clientID := clientOrderID("2025-10-06", "NVDA", kindEntryBuy)
	if err := store.InsertOrder(state.Order{
		ClientID: clientID, BrokerageOrderID: "bo-entry", Ticker: "NVDA",
		Side: state.SideBuy, Intent: state.IntentEntry, TradeDate: dayConst("2025-10-06"),
		Quantity: 5, Status: state.OrderAccepted, PlannedStopPrice: &stopPrice,
	}); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	fb := broker.NewFakeBroker()
	fb.Orders[clientID] = &broker.BrokerOrder{ClientOrderID: clientID, BrokerageOrderID: "bo-entry", Status: "filled"}
	fillPrice := 95.0
	fb.Orders[clientID].FillPrice = &fillPrice
	fb.Orders[clientID].FilledQuantity = 5

	exec := New(fb, store, DefaultConfig(ModeOPG))
	signals := &signalgen.SignalFile{TradeDate: "2025-10-06", Strategy: signalgen.StrategyEMA10}

	summary, err := exec.Run(context.Background(), signals, PhasePoll)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.EntriesExecuted != 1 {
		t.Fatalf("expected 1 entry recorded from poll, got %d", summary.EntriesExecuted)
	}

	open, err := store.OpenPositions()
	if err != nil {
		t.Fatalf("open positions: %v", err)
	}
	if len(open) != 1 || open[0].Ticker != "NVDA" {
		t.Fatalf("expected NVDA position recorded, got %+v", open)
	}

	fb.NextFailure = context.DeadlineExceeded
	stopPrice2 := 80.0
	clientID2 := clientOrderID("2025-10-06", "TSLA", kindEntryBuy)
	if err := store.InsertOrder(state.Order{
		ClientID: clientID2, BrokerageOrderID: "bo-entry-2", Ticker: "TSLA",
		Side: state.SideBuy, Intent: state.IntentEntry, TradeDate: dayConst("2025-10-06"),
		Quantity: 3, Status: state.OrderAccepted, PlannedStopPrice: &stopPrice2,
	}); err != nil {
		t.Fatalf("insert order 2: %v", err)
	}
	fb.Orders[clientID2] = &broker.BrokerOrder{ClientOrderID: clientID2, BrokerageOrderID: "bo-entry-2", Status: "filled"}
	fillPrice2 := 82.0
	fb.Orders[clientID2].FillPrice = &fillPrice2
	fb.Orders[clientID2].FilledQuantity = 3

	if _, err := exec.Run(context.Background(), signals, PhasePoll); err != nil {
		t.Fatalf("expected stop placement failure to be absorbed, not propagated: %v", err)
	}
	if _, err := exec.Run(context.Background(), signals, PhasePoll); err == nil {
		t.Fatalf("expected kill switch tripped by the stop failure to block a subsequent run")
	}
	killed, err := store.KillSwitch()
	if err != nil {
		t.Fatalf("kill switch: %v", err)
	}
	if !killed {
		t.Fatalf("expected kill switch engaged after stop placement failure")
	}
}
