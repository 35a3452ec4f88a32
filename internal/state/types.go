// Package state is the durable, single-writer relational store backing
// the live signal generator and order executor: positions, orders, run
// history, the shadow book, and system config.
package state

import "time"

// OrderStatus is a position along the order state machine: none ->
// pending -> accepted -> partially_filled -> filled, with cancellation
// paths at every non-terminal point.
type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderAccepted        OrderStatus = "accepted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderExpired         OrderStatus = "expired"
	OrderRejected        OrderStatus = "rejected"
	OrderDoneForDay      OrderStatus = "done_for_day"
	OrderSuspended       OrderStatus = "suspended"
)

// terminalStatuses is the fixed terminal-status set; any other status is
// eligible for polling.
var terminalStatuses = map[OrderStatus]bool{
	OrderFilled:     true,
	OrderCanceled:   true,
	OrderExpired:    true,
	OrderRejected:   true,
	OrderDoneForDay: true,
	OrderSuspended:  true,
}

// IsTerminal reports whether status is one of the fixed terminal states.
func IsTerminal(status OrderStatus) bool {
	return terminalStatuses[status]
}

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderIntent distinguishes why an order was placed.
type OrderIntent string

const (
	IntentEntry OrderIntent = "entry"
	IntentExit  OrderIntent = "exit"
	IntentStop  OrderIntent = "stop"
)

// Position is a live, persistent open (or recently closed) position.
type Position struct {
	Ticker       string
	EntryDate    time.Time
	EntryPrice   float64
	TargetShares int
	ActualShares int
	Invested     float64
	StopPrice    float64
	StopOrderID  string
	Score        *float64
	Grade        string
	GradeSource  string
	ExitDate     *time.Time
	ExitPrice    *float64
	ExitReason   string
}

// ExitInfo is the closing detail applied when a position exits.
type ExitInfo struct {
	ExitDate   time.Time
	ExitPrice  float64
	ExitReason string
}

// Order is one client-assigned order record.
type Order struct {
	ClientID         string
	BrokerageOrderID string
	Ticker           string
	Side             OrderSide
	Intent           OrderIntent
	TradeDate        time.Time
	Quantity         int
	Status           OrderStatus
	FillPrice        *float64
	FilledQuantity   int
	RemainingQty     int
	RejectReason     string
	PlannedStopPrice *float64
	RunID            string
}

// FillUpdate carries the fields updated when an order's status changes.
type FillUpdate struct {
	FillPrice      *float64
	FilledQuantity int
	RemainingQty   int
	RejectReason   string
}

// RunPhase is which stage of the executor/signal-generator pipeline a
// run record represents.
type RunPhase string

const (
	PhasePlace       RunPhase = "place"
	PhasePoll        RunPhase = "poll"
	PhaseExecute     RunPhase = "execute"
	PhasePollSkipped RunPhase = "poll_skipped"
)

// RunStatus is the terminal outcome of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunCounters are the per-phase counters recorded at run completion.
type RunCounters struct {
	ExitsExecuted   int
	EntriesExecuted int
	Skipped         int
}

// ShadowPosition is a parallel, never-executed position tracked for the
// shadow (A/B comparison) strategy.
type ShadowPosition struct {
	Ticker     string
	EntryDate  time.Time
	EntryPrice float64
	Shares     int
	ExitDate   *time.Time
	ExitPrice  *float64
	ExitReason string
}
