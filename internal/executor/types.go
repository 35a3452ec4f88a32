// Package executor is the live order executor (C8): consumes an
// execution-strategy SignalFile and drives the five-phase
// place/poll/recount/entry/protect pipeline against a Broker and the
// durable state store, honoring the kill switch and idempotency
// invariants at every placement boundary.
package executor

import "time"

// Mode selects the entry time-in-force regime, which in turn controls
// which phases run and how the time guard and poll timeout behave.
type Mode string

const (
	ModeDay Mode = "day"
	ModeOPG Mode = "opg"
)

// InvocationPhase is the CLI-level phase argument.
type InvocationPhase string

const (
	PhasePlace InvocationPhase = "place" // A-D
	PhasePoll  InvocationPhase = "poll"  // F, DB-driven
	PhaseAll   InvocationPhase = "all"   // A-E, rejected for ModeOPG
)

// Config parameterizes one Executor.
type Config struct {
	Mode                Mode
	MaxPositions        int
	EntryCutoffMinutes  int
	MinBuyingPower      float64
	MaxDailyTradeOrders int
	MaxDailyStopOrders  int
	SellPollTimeout     time.Duration
	SellPollInterval    time.Duration
	BuyPollTimeout      time.Duration
	BuyPollInterval     time.Duration

	// Now is injected for the entry time guard so tests don't depend on
	// the wall clock. Defaults to time.Now in DefaultConfig.
	Now func() time.Time
}

// DefaultConfig returns the §5 defaults: 60s/5s day-mode poll budget.
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode: mode, MaxPositions: 10, EntryCutoffMinutes: 30, MinBuyingPower: 0,
		MaxDailyTradeOrders: 50, MaxDailyStopOrders: 50,
		SellPollTimeout: 60 * time.Second, SellPollInterval: 5 * time.Second,
		BuyPollTimeout: 60 * time.Second, BuyPollInterval: 5 * time.Second,
		Now: time.Now,
	}
}

// RunSummary tallies what one invocation actually did, for the CLI's
// final log line and the run record's counters.
type RunSummary struct {
	ExitsExecuted   int
	EntriesExecuted int
	Skipped         int
}
