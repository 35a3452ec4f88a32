// Package signalgen produces the two daily live signal sets (C6): an
// execution set under strategy ema_p10, intended for real order
// placement, and a shadow set under strategy nwl_p4, recorded only for
// A/B comparison. Both are driven through the same shared C2/C3 rule
// kernel the backtest simulator uses, so live decisions and backtest
// decisions never diverge on the trade-decision path.
package signalgen

import (
	"github.com/tradermonty/earningsgap/internal/trailingstop"
)

// Strategy names the two signal sets this package produces.
type Strategy string

const (
	StrategyEMA10 Strategy = "ema_p10"
	StrategyNWL4  Strategy = "nwl_p4"
)

// TrailingStopConfig parameterizes a strategy's trailing-stop rule kernel.
type TrailingStopConfig struct {
	Mode            trailingstop.Mode
	Period          int
	TransitionWeeks int
}

// Config parameterizes one GenerateSignals run.
type Config struct {
	MinGrade        string
	PositionSize    float64
	StopLossPct     float64
	MaxPositions    int
	Execution       TrailingStopConfig
	Shadow          TrailingStopConfig
	Force           bool
	DryRun          bool
	GeneratedAt     string
	OutputDir       string
}

// ExitEntry is one exit row of a SignalFile.
type ExitEntry struct {
	Ticker       string  `json:"ticker"`
	PositionID   string  `json:"position_id,omitempty"`
	Reason       string  `json:"reason"`
	Qty          int     `json:"qty"`
	EntryPrice   float64 `json:"entry_price"`
	StopOrderID  string  `json:"stop_order_id,omitempty"`
}

// EntryEntry is one entry row of a SignalFile.
type EntryEntry struct {
	Ticker      string   `json:"ticker"`
	Side        string   `json:"side"`
	Qty         int      `json:"qty"`
	Score       *float64 `json:"score"`
	Grade       string   `json:"grade"`
	ReportDate  string   `json:"report_date"`
	CompanyName string   `json:"company_name,omitempty"`
	StopPrice   float64  `json:"stop_price"`
}

// SkippedEntry is one skipped-candidate row of a SignalFile.
type SkippedEntry struct {
	Ticker string   `json:"ticker"`
	Reason string   `json:"reason"`
	Score  *float64 `json:"score"`
}

// Summary is the before/after capacity snapshot of a SignalFile.
type Summary struct {
	TotalExits         int `json:"total_exits"`
	TotalEntries       int `json:"total_entries"`
	TotalSkipped       int `json:"total_skipped"`
	OpenPositionsBefore int `json:"open_positions_before"`
	OpenPositionsAfter  int `json:"open_positions_after"`
}

// SignalFile is the §6 JSON wire schema produced by GenerateSignals and
// consumed by the executor.
type SignalFile struct {
	TradeDate   string         `json:"trade_date"`
	Strategy    Strategy       `json:"strategy"`
	RunID       string         `json:"run_id"`
	GeneratedAt string         `json:"generated_at"`
	Exits       []ExitEntry    `json:"exits"`
	Entries     []EntryEntry   `json:"entries"`
	Skipped     []SkippedEntry `json:"skipped"`
	Summary     Summary        `json:"summary"`
}
