// Package candidate defines the trade-candidate and trade-result types
// shared by the backtest simulator and the live signal generator, along
// with the Source capability for ingesting ranked candidate lists.
package candidate

import (
	"context"
	"time"
)

// Grade is the qualitative rank assigned to a candidate.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// GradeSource records how a candidate's grade was derived.
type GradeSource string

const (
	GradeSourceHTML     GradeSource = "html"
	GradeSourceInferred GradeSource = "inferred"
	GradeSourceJSON     GradeSource = "json"
)

// ExitReason is the closing cause of a trade result or a live exit.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitMaxHolding ExitReason = "max_holding"
	ExitEndOfData  ExitReason = "end_of_data"
	ExitTrendBreak ExitReason = "trend_break"
	ExitRotatedOut ExitReason = "rotated_out"
)

// Candidate is one earnings-gap candidate under consideration for entry.
type Candidate struct {
	Ticker      string
	ReportDate  time.Time
	Grade       Grade
	GradeSource GradeSource
	Score       *float64 // nil = absent; valid range (5, 100]
	EntryPrice  *float64
	GapSize     *float64
	CompanyName string
}

// TradeResult is a closed backtest position.
type TradeResult struct {
	Ticker      string
	Grade       Grade
	Score       *float64
	ReportDate  time.Time
	EntryDate   time.Time
	EntryPrice  float64
	ExitDate    time.Time
	ExitPrice   float64
	Shares      int
	Invested    float64
	PnL         float64
	ReturnPct   float64
	HoldingDays int
	ExitReason  ExitReason
	GapSize     *float64
	CompanyName string
}

// Source produces a ranked candidate list for a trade date.
type Source interface {
	Candidates(ctx context.Context, tradeDate time.Time) ([]Candidate, error)
}
