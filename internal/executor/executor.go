package executor

import (
	"context"
	"fmt"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/metrics"
	"github.com/tradermonty/earningsgap/internal/signalgen"
	"github.com/tradermonty/earningsgap/internal/state"
)

// Executor drives the order-placement pipeline for one SignalFile.
type Executor struct {
	broker broker.Broker
	store  *state.Store
	cfg    Config
}

// New builds an Executor. Construction itself carries no brokerage
// checks; those live in the Broker implementation's own constructor
// (e.g. broker.NewAlpacaBroker's paper-URL guard).
func New(brk broker.Broker, store *state.Store, cfg Config) *Executor {
	return &Executor{broker: brk, store: store, cfg: cfg}
}

// Run executes signals under phase, refusing a non-ema_p10 strategy and
// an "all" invocation under OPG time-in-force.
func (e *Executor) Run(ctx context.Context, signals *signalgen.SignalFile, phase InvocationPhase) (RunSummary, error) {
	if signals.Strategy != signalgen.StrategyEMA10 {
		return RunSummary{}, apperrors.ErrWrongStrategy(fmt.Sprintf("executor refuses strategy %q, want %q", signals.Strategy, signalgen.StrategyEMA10))
	}
	if phase == PhaseAll && e.cfg.Mode == ModeOPG {
		return RunSummary{}, apperrors.ErrOPGAllPhase("'all' phase is rejected under opg time-in-force; run place then poll separately")
	}

	killed, err := e.store.KillSwitch()
	if err != nil {
		return RunSummary{}, fmt.Errorf("executor: kill switch check: %w", err)
	}
	if killed {
		return RunSummary{}, apperrors.ErrKillSwitch("kill switch is engaged")
	}

	var summary RunSummary

	switch phase {
	case PhasePoll:
		if err := e.phaseF_pollOPG(ctx, signals, &summary); err != nil {
			return summary, err
		}
		return summary, nil

	case PhasePlace, PhaseAll:
		if err := e.phaseA_cancelAndSell(ctx, signals, &summary); err != nil {
			return summary, err
		}
		skipPoll := phase == PhasePlace && e.cfg.Mode == ModeOPG
		if !skipPoll {
			if err := e.phaseB_pollSells(ctx, signals); err != nil {
				return summary, err
			}
		}
		openCount, err := e.phaseC_recount(ctx, signals, skipPoll, summary.ExitsExecuted)
		if err != nil {
			return summary, err
		}
		slots := e.cfg.MaxPositions - openCount
		if err := e.phaseD_entries(ctx, signals, slots, &summary); err != nil {
			return summary, err
		}
		if phase == PhaseAll {
			if err := e.phaseE_pollBuys(ctx, signals); err != nil {
				return summary, err
			}
		}
		return summary, nil
	}

	return summary, fmt.Errorf("executor: unknown phase %q", phase)
}

// lookupOrder is the two-tier idempotency check of §4.8.1: C7 first,
// then the brokerage by client id. The direct analogue of the
// teacher's Secondary() provider fallback chain.
func (e *Executor) lookupOrder(ctx context.Context, clientID string) (*state.Order, bool, error) {
	if o, ok, err := e.store.OrderByClientID(clientID); err != nil {
		return nil, false, fmt.Errorf("executor: order lookup %s: %w", clientID, err)
	} else if ok {
		return o, true, nil
	}

	bo, ok, err := e.broker.GetOrder(ctx, clientID)
	if err != nil {
		return nil, false, fmt.Errorf("executor: broker order lookup %s: %w", clientID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return brokerOrderToState(bo), true, nil
}

func brokerOrderToState(bo *broker.BrokerOrder) *state.Order {
	return &state.Order{
		ClientID: bo.ClientOrderID, BrokerageOrderID: bo.BrokerageOrderID,
		Status: state.OrderStatus(bo.Status), FillPrice: bo.FillPrice, FilledQuantity: bo.FilledQuantity,
	}
}

// tripKillSwitch engages the kill switch and logs CRITICAL, the
// invariant-3 response to a stop-placement failure after a fill.
func (e *Executor) tripKillSwitch(reason string) {
	logger.Criticalf("executor: kill switch engaged: %s", reason)
	metrics.SetKillSwitchEngaged(true)
	if err := e.store.SetKillSwitch(true); err != nil {
		logger.Criticalf("executor: failed to persist kill switch: %v", err)
	}
}
