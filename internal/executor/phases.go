package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/metrics"
	"github.com/tradermonty/earningsgap/internal/signalgen"
	"github.com/tradermonty/earningsgap/internal/state"
)

const dateLayout = "2006-01-02"

func parseTradeDate(s string) time.Time {
	d, _ := time.Parse(dateLayout, s)
	return d
}

// phaseA_cancelAndSell is Phase A (Open): cancel known protective stops
// and place market sells for every exit, skipping the sell outright
// when the stop already filled.
func (e *Executor) phaseA_cancelAndSell(ctx context.Context, signals *signalgen.SignalFile, summary *RunSummary) error {
	tradeDate := parseTradeDate(signals.TradeDate)

	for _, exit := range signals.Exits {
		sellClientID := clientOrderID(signals.TradeDate, exit.Ticker, kindExitSell)
		if _, found, err := e.lookupOrder(ctx, sellClientID); err != nil {
			return err
		} else if found {
			logger.Infof("executor: exit sell for %s already exists, idempotent skip", exit.Ticker)
			continue
		}

		if exit.StopOrderID != "" {
			if err := e.broker.CancelOrder(ctx, exit.StopOrderID); err != nil {
				logger.Debugf("executor: cancel stop %s for %s: %v", exit.StopOrderID, exit.Ticker, err)
			}
			stopClientID := clientOrderID(signals.TradeDate, exit.Ticker, kindStopSell)
			stopOrder, found, err := e.lookupOrder(ctx, stopClientID)
			if err != nil {
				return err
			}
			if found && stopOrder.Status == state.OrderFilled && stopOrder.FillPrice != nil {
				if err := e.store.ClosePosition(exit.Ticker, state.ExitInfo{ExitDate: tradeDate, ExitPrice: *stopOrder.FillPrice, ExitReason: exit.Reason}); err != nil {
					return fmt.Errorf("executor: close %s from stop fill: %w", exit.Ticker, err)
				}
				summary.ExitsExecuted++
				continue
			}
		}

		order, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
			ClientOrderID: sellClientID, Ticker: exit.Ticker, Side: broker.SideSell,
			Quantity: exit.Qty, TimeInForce: broker.TIFDay,
		})
		if err != nil {
			logger.Errorf("executor: place exit sell %s: %v", exit.Ticker, err)
			metrics.RecordOrderFailed("exit")
			continue
		}
		if err := e.store.InsertOrder(state.Order{
			ClientID: sellClientID, BrokerageOrderID: order.BrokerageOrderID, Ticker: exit.Ticker,
			Side: state.SideSell, Intent: state.IntentExit, TradeDate: tradeDate,
			Quantity: exit.Qty, Status: state.OrderStatus(order.Status),
		}); err != nil {
			return fmt.Errorf("executor: record exit sell %s: %w", exit.Ticker, err)
		}
		metrics.RecordOrderPlaced("exit", "sell")
		summary.ExitsExecuted++
	}
	return nil
}

// phaseB_pollSells is Phase B: cooperative poll loop for the sells
// Phase A placed, updating C7 on every transition and closing the
// position in C7 on fill.
func (e *Executor) phaseB_pollSells(ctx context.Context, signals *signalgen.SignalFile) error {
	pending := make(map[string]bool, len(signals.Exits))
	for _, exit := range signals.Exits {
		pending[exit.Ticker] = true
	}

	deadline := time.Now().Add(e.cfg.SellPollTimeout)
	for len(pending) > 0 && time.Now().Before(deadline) {
		for ticker := range pending {
			clientID := clientOrderID(signals.TradeDate, ticker, kindExitSell)
			bo, ok, err := e.broker.GetOrder(ctx, clientID)
			if err != nil {
				return fmt.Errorf("executor: poll exit sell %s: %w", ticker, err)
			}
			if !ok {
				continue
			}
			o := brokerOrderToState(bo)
			if err := e.store.UpdateOrderStatus(clientID, o.Status, state.FillUpdate{FillPrice: o.FillPrice, FilledQuantity: o.FilledQuantity}); err != nil {
				return fmt.Errorf("executor: update exit sell status %s: %w", ticker, err)
			}
			if !state.IsTerminal(o.Status) {
				continue
			}
			if o.Status == state.OrderFilled && o.FillPrice != nil {
				if err := e.store.ClosePosition(ticker, state.ExitInfo{ExitDate: parseTradeDate(signals.TradeDate), ExitPrice: *o.FillPrice, ExitReason: "exit"}); err != nil {
					return fmt.Errorf("executor: close %s on fill: %w", ticker, err)
				}
			}
			delete(pending, ticker)
		}
		if len(pending) > 0 {
			time.Sleep(e.cfg.SellPollInterval)
		}
	}
	for ticker := range pending {
		logger.Infof("executor: exit sell for %s still pending after poll timeout", ticker)
	}
	return nil
}

// phaseC_recount is Phase C: in day mode trust the brokerage's live
// position list; in OPG place-phase mode (skipPoll), derive the count
// from C7 minus exits actually executed, floored at zero.
func (e *Executor) phaseC_recount(ctx context.Context, signals *signalgen.SignalFile, skipPoll bool, exitsExecuted int) (int, error) {
	if !skipPoll {
		positions, err := e.broker.ListPositions(ctx)
		if err != nil {
			return 0, fmt.Errorf("executor: list broker positions: %w", err)
		}
		metrics.SetPositionsOpen(len(positions))
		return len(positions), nil
	}

	openDB, err := e.store.OpenPositions()
	if err != nil {
		return 0, fmt.Errorf("executor: open positions: %w", err)
	}
	count := len(openDB) - exitsExecuted
	if count < 0 {
		count = 0
	}
	metrics.SetPositionsOpen(count)
	return count, nil
}

// phaseD_entries is Phase D: time guard, slot/buying-power/daily-cap
// enforcement, then placement — a bracket order in day mode (falling
// back to a plain buy + Phase E stop scheduling), a plain OPG-tif buy
// with a recorded planned stop in OPG mode.
func (e *Executor) phaseD_entries(ctx context.Context, signals *signalgen.SignalFile, slots int, summary *RunSummary) error {
	tradeDate := parseTradeDate(signals.TradeDate)

	now := time.Now
	if e.cfg.Now != nil {
		now = e.cfg.Now
	}
	if !e.entryTimeGuardOK(now()) {
		logger.Infof("executor: entry time guard blocks entries for %s", signals.TradeDate)
		return nil
	}

	buyingPower, err := e.broker.BuyingPower(ctx)
	if err != nil {
		return fmt.Errorf("executor: buying power: %w", err)
	}
	if buyingPower < e.cfg.MinBuyingPower {
		logger.Infof("executor: buying power %.2f below floor %.2f, skipping entries", buyingPower, e.cfg.MinBuyingPower)
		return nil
	}

	entryCount, err := e.store.CountOrders(tradeDate, state.IntentEntry)
	if err != nil {
		return fmt.Errorf("executor: count entry orders: %w", err)
	}
	exitCount, err := e.store.CountOrders(tradeDate, state.IntentExit)
	if err != nil {
		return fmt.Errorf("executor: count exit orders: %w", err)
	}
	stopCount, err := e.store.CountOrders(tradeDate, state.IntentStop)
	if err != nil {
		return fmt.Errorf("executor: count stop orders: %w", err)
	}
	tradeOrders := entryCount + exitCount

	for _, entry := range signals.Entries {
		if entry.Side != "buy" {
			continue
		}
		if slots <= 0 {
			summary.Skipped++
			continue
		}
		if tradeOrders >= e.cfg.MaxDailyTradeOrders {
			logger.Infof("executor: daily trade order cap reached, skipping %s", entry.Ticker)
			summary.Skipped++
			continue
		}

		buyClientID := clientOrderID(signals.TradeDate, entry.Ticker, kindEntryBuy)
		if _, found, err := e.lookupOrder(ctx, buyClientID); err != nil {
			return err
		} else if found {
			logger.Infof("executor: entry buy for %s already exists, idempotent skip", entry.Ticker)
			continue
		}

		if e.cfg.Mode == ModeOPG {
			if err := e.placeOPGEntry(ctx, signals.TradeDate, entry, tradeDate); err != nil {
				logger.Errorf("executor: place OPG entry %s: %v", entry.Ticker, err)
				metrics.RecordOrderFailed("entry")
				continue
			}
			metrics.RecordOrderPlaced("entry", "buy")
			slots--
			tradeOrders++
			summary.EntriesExecuted++
			continue
		}

		stopClientID := clientOrderID(signals.TradeDate, entry.Ticker, kindStopSell)
		if stopCount < e.cfg.MaxDailyStopOrders {
			bracket, err := e.broker.PlaceBracketOrder(ctx, broker.BracketRequest{
				ClientOrderID: buyClientID, Ticker: entry.Ticker, Side: broker.SideBuy,
				Quantity: entry.Qty, TimeInForce: broker.TIFDay, StopPrice: entry.StopPrice,
				StopClientOrderID: stopClientID,
			})
			if err == nil {
				if err := e.store.InsertOrder(state.Order{
					ClientID: buyClientID, BrokerageOrderID: bracket.BrokerageOrderID, Ticker: entry.Ticker,
					Side: state.SideBuy, Intent: state.IntentEntry, TradeDate: tradeDate,
					Quantity: entry.Qty, Status: state.OrderStatus(bracket.Status), PlannedStopPrice: &entry.StopPrice,
				}); err != nil {
					return fmt.Errorf("executor: record bracket entry %s: %w", entry.Ticker, err)
				}
				metrics.RecordOrderPlaced("entry", "buy")
				slots--
				tradeOrders++
				stopCount++
				summary.EntriesExecuted++
				continue
			}
			logger.Errorf("executor: bracket order failed for %s, falling back to plain buy: %v", entry.Ticker, err)
		}

		plain, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
			ClientOrderID: buyClientID, Ticker: entry.Ticker, Side: broker.SideBuy,
			Quantity: entry.Qty, TimeInForce: broker.TIFDay,
		})
		if err != nil {
			logger.Errorf("executor: place fallback entry buy %s: %v", entry.Ticker, err)
			metrics.RecordOrderFailed("entry")
			continue
		}
		if err := e.store.InsertOrder(state.Order{
			ClientID: buyClientID, BrokerageOrderID: plain.BrokerageOrderID, Ticker: entry.Ticker,
			Side: state.SideBuy, Intent: state.IntentEntry, TradeDate: tradeDate,
			Quantity: entry.Qty, Status: state.OrderStatus(plain.Status), PlannedStopPrice: &entry.StopPrice,
		}); err != nil {
			return fmt.Errorf("executor: record fallback entry %s: %w", entry.Ticker, err)
		}
		metrics.RecordOrderPlaced("entry", "buy")
		slots--
		tradeOrders++
		summary.EntriesExecuted++
	}
	return nil
}

func (e *Executor) placeOPGEntry(ctx context.Context, tradeDateStr string, entry signalgen.EntryEntry, tradeDate time.Time) error {
	buyClientID := clientOrderID(tradeDateStr, entry.Ticker, kindEntryBuy)
	order, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
		ClientOrderID: buyClientID, Ticker: entry.Ticker, Side: broker.SideBuy,
		Quantity: entry.Qty, TimeInForce: broker.TIFOPG,
	})
	if err != nil {
		return err
	}
	stopPrice := entry.StopPrice
	return e.store.InsertOrder(state.Order{
		ClientID: buyClientID, BrokerageOrderID: order.BrokerageOrderID, Ticker: entry.Ticker,
		Side: state.SideBuy, Intent: state.IntentEntry, TradeDate: tradeDate,
		Quantity: entry.Qty, Status: state.OrderStatus(order.Status), PlannedStopPrice: &stopPrice,
	})
}

// phaseE_pollBuys is Phase E (day mode only): on each entry buy fill,
// capture the bracket's stop leg as-is, or place a fallback GTC stop;
// stop placement failure trips the kill switch and the position is
// still recorded, unprotected.
func (e *Executor) phaseE_pollBuys(ctx context.Context, signals *signalgen.SignalFile) error {
	pending := make(map[string]signalgen.EntryEntry, len(signals.Entries))
	for _, entry := range signals.Entries {
		if entry.Side == "buy" {
			pending[entry.Ticker] = entry
		}
	}

	deadline := time.Now().Add(e.cfg.BuyPollTimeout)
	for len(pending) > 0 && time.Now().Before(deadline) {
		for ticker, entry := range pending {
			buyClientID := clientOrderID(signals.TradeDate, ticker, kindEntryBuy)
			bo, ok, err := e.broker.GetOrder(ctx, buyClientID)
			if err != nil {
				return fmt.Errorf("executor: poll entry buy %s: %w", ticker, err)
			}
			if !ok {
				continue
			}
			o := brokerOrderToState(bo)
			if err := e.store.UpdateOrderStatus(buyClientID, o.Status, state.FillUpdate{FillPrice: o.FillPrice, FilledQuantity: o.FilledQuantity}); err != nil {
				return fmt.Errorf("executor: update entry buy status %s: %w", ticker, err)
			}
			if !state.IsTerminal(o.Status) {
				continue
			}
			if o.Status == state.OrderFilled && o.FillPrice != nil {
				e.onEntryFilled(ctx, signals.TradeDate, ticker, entry, *o.FillPrice)
			}
			delete(pending, ticker)
		}
		if len(pending) > 0 {
			time.Sleep(e.cfg.BuyPollInterval)
		}
	}
	for ticker := range pending {
		logger.Infof("executor: entry buy for %s still pending after poll timeout", ticker)
	}
	return nil
}

func (e *Executor) onEntryFilled(ctx context.Context, tradeDateStr, ticker string, entry signalgen.EntryEntry, fillPrice float64) {
	tradeDate := parseTradeDate(tradeDateStr)
	stopClientID := clientOrderID(tradeDateStr, ticker, kindStopSell)

	stopOrderID := ""
	if existing, found, _ := e.lookupOrder(ctx, stopClientID); found && !state.IsTerminal(existing.Status) {
		stopOrderID = existing.BrokerageOrderID
	} else {
		stopOrder, err := e.broker.PlaceStopOrder(ctx, broker.StopRequest{
			ClientOrderID: stopClientID, Ticker: ticker, Side: broker.SideSell,
			Quantity: entry.Qty, StopPrice: entry.StopPrice,
		})
		if err != nil {
			e.tripKillSwitch(fmt.Sprintf("stop placement failed for %s after fill: %v", ticker, err))
		} else {
			stopOrderID = stopOrder.BrokerageOrderID
			if err := e.store.InsertOrder(state.Order{
				ClientID: stopClientID, BrokerageOrderID: stopOrder.BrokerageOrderID, Ticker: ticker,
				Side: state.SideSell, Intent: state.IntentStop, TradeDate: tradeDate,
				Quantity: entry.Qty, Status: state.OrderStatus(stopOrder.Status),
			}); err != nil {
				logger.Errorf("executor: record stop order %s: %v", ticker, err)
			}
		}
	}

	if err := e.store.InsertPosition(state.Position{
		Ticker: ticker, EntryDate: tradeDate, EntryPrice: fillPrice, TargetShares: entry.Qty,
		ActualShares: entry.Qty, Invested: fillPrice * float64(entry.Qty), StopPrice: entry.StopPrice,
		StopOrderID: stopOrderID, Score: entry.Score, Grade: entry.Grade,
	}); err != nil {
		logger.Errorf("executor: record position %s: %v", ticker, err)
	}
}

// phaseF_pollOPG is the DB-driven OPG poll phase: non-terminal entry
// buys for the trade date are polled once; on fill, the planned stop
// price drives stop placement, idempotent against any existing
// non-terminal stop and re-placed under a retry client id if the prior
// stop went terminal.
func (e *Executor) phaseF_pollOPG(ctx context.Context, signals *signalgen.SignalFile, summary *RunSummary) error {
	intentEntry := state.IntentEntry
	sideBuy := state.SideBuy
	tradeDate := parseTradeDate(signals.TradeDate)

	orders, err := e.store.NonTerminalOrders(tradeDate, &intentEntry, &sideBuy)
	if err != nil {
		return fmt.Errorf("executor: non-terminal entry orders: %w", err)
	}

	for _, order := range orders {
		bo, found, err := e.broker.GetOrder(ctx, order.ClientID)
		if err != nil {
			return fmt.Errorf("executor: poll OPG entry %s: %w", order.Ticker, err)
		}
		if !found {
			continue
		}
		if err := e.store.UpdateOrderStatus(order.ClientID, state.OrderStatus(bo.Status), state.FillUpdate{FillPrice: bo.FillPrice, FilledQuantity: bo.FilledQuantity}); err != nil {
			return fmt.Errorf("executor: update OPG entry status %s: %w", order.Ticker, err)
		}
		if bo.Status != "filled" || bo.FillPrice == nil {
			continue
		}

		if order.PlannedStopPrice == nil {
			logger.Criticalf("executor: OPG fill for %s has no planned stop price, recording unprotected position", order.Ticker)
			e.recordUnprotected(order, *bo.FillPrice)
			summary.EntriesExecuted++
			continue
		}

		stopClientID := clientOrderID(signals.TradeDate, order.Ticker, kindStopSell)
		existing, stopFound, err := e.lookupOrder(ctx, stopClientID)
		if err != nil {
			return err
		}
		if stopFound && !state.IsTerminal(existing.Status) {
			e.recordPositionWithStop(order, *bo.FillPrice, existing.BrokerageOrderID)
			summary.EntriesExecuted++
			continue
		}

		retryClientID := stopClientID
		if stopFound {
			retryClientID = clientOrderID(signals.TradeDate, order.Ticker, kindStopSellRetry)
		}
		stopOrder, err := e.broker.PlaceStopOrder(ctx, broker.StopRequest{
			ClientOrderID: retryClientID, Ticker: order.Ticker, Side: broker.SideSell,
			Quantity: order.Quantity, StopPrice: *order.PlannedStopPrice,
		})
		if err != nil {
			e.tripKillSwitch(fmt.Sprintf("OPG stop placement failed for %s: %v", order.Ticker, err))
			e.recordUnprotected(order, *bo.FillPrice)
			summary.EntriesExecuted++
			continue
		}
		if err := e.store.InsertOrder(state.Order{
			ClientID: retryClientID, BrokerageOrderID: stopOrder.BrokerageOrderID, Ticker: order.Ticker,
			Side: state.SideSell, Intent: state.IntentStop, TradeDate: tradeDate,
			Quantity: order.Quantity, Status: state.OrderStatus(stopOrder.Status),
		}); err != nil {
			logger.Errorf("executor: record OPG stop order %s: %v", order.Ticker, err)
		}
		e.recordPositionWithStop(order, *bo.FillPrice, stopOrder.BrokerageOrderID)
		summary.EntriesExecuted++
	}
	return nil
}

func (e *Executor) recordUnprotected(order state.Order, fillPrice float64) {
	e.recordPositionWithStop(order, fillPrice, "")
}

func (e *Executor) recordPositionWithStop(order state.Order, fillPrice float64, stopOrderID string) {
	stopPrice := 0.0
	if order.PlannedStopPrice != nil {
		stopPrice = *order.PlannedStopPrice
	}
	if err := e.store.InsertPosition(state.Position{
		Ticker: order.Ticker, EntryDate: order.TradeDate, EntryPrice: fillPrice,
		TargetShares: order.Quantity, ActualShares: order.Quantity, Invested: fillPrice * float64(order.Quantity),
		StopPrice: stopPrice, StopOrderID: stopOrderID,
	}); err != nil {
		logger.Errorf("executor: record position %s: %v", order.Ticker, err)
	}
}

// entryTimeGuardOK implements §4.8.2's time guard: day mode blocks
// entries once more than EntryCutoffMinutes have elapsed since market
// open; OPG mode blocks entries inside the 09:28-19:00 ET regular
// session window (OPG orders must be submitted pre-market).
func (e *Executor) entryTimeGuardOK(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	et := now.In(loc)

	if e.cfg.Mode == ModeOPG {
		windowStart := time.Date(et.Year(), et.Month(), et.Day(), 9, 28, 0, 0, loc)
		windowEnd := time.Date(et.Year(), et.Month(), et.Day(), 19, 0, 0, 0, loc)
		return et.Before(windowStart) || !et.Before(windowEnd)
	}

	marketOpen := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, loc)
	marketClose := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, loc)
	if et.Before(marketOpen) || !et.Before(marketClose) {
		return true
	}
	return et.Sub(marketOpen) <= time.Duration(e.cfg.EntryCutoffMinutes)*time.Minute
}
