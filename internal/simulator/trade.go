// Package simulator implements the per-candidate trade simulator (C4)
// and the day-by-day portfolio scheduler (C5). The per-candidate path
// scans forward bar by bar, tracks high/low, checks exit conditions in a
// fixed order, and falls through to end_of_data.
package simulator

import (
	"math"
	"sort"
	"time"

	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/pricebar"
)

// EntryMode selects how a candidate's entry bar is located.
type EntryMode string

const (
	EntryNextDayOpen EntryMode = "next_day_open"
	EntryReportOpen  EntryMode = "report_open"
)

// StopMode selects the stop-loss trigger/execution rule.
type StopMode string

const (
	StopIntraday      StopMode = "intraday"
	StopClose         StopMode = "close"
	StopSkipEntryDay  StopMode = "skip_entry_day"
	StopCloseNextOpen StopMode = "close_next_open"
)

// SkipReason explains why a candidate never became a trade.
type SkipReason string

const (
	SkipMissingOHLC     SkipReason = "missing_ohlc"
	SkipZeroShares      SkipReason = "zero_shares"
	SkipNoPriceData     SkipReason = "no_price_data"
	SkipDailyLimit      SkipReason = "daily_limit"
	SkipDuplicateTicker SkipReason = "duplicate_ticker"
	SkipCapacityFull    SkipReason = "capacity_full"
)

// TradeConfig parameterizes one candidate simulation.
type TradeConfig struct {
	EntryMode      EntryMode
	StopMode       StopMode
	PositionSize   float64
	StopLossPct    float64
	SlippagePct    float64
	MaxHoldingDays int
}

// SkippedTrade records a candidate that never opened a position.
type SkippedTrade struct {
	Ticker     string
	ReportDate time.Time
	Reason     SkipReason
}

// entryBar resolves a candidate's entry bar per cfg.EntryMode.
func entryBar(store *pricebar.Store, ticker string, reportDate time.Time, mode EntryMode) (pricebar.Bar, bool) {
	if mode == EntryReportOpen {
		return store.FirstBarOnOrAfter(ticker, reportDate)
	}
	return store.FirstBarAfter(ticker, reportDate)
}

// SimulateTrade simulates one candidate independently of portfolio
// capacity, returning either a closed TradeResult or a SkippedTrade.
func SimulateTrade(store *pricebar.Store, c candidate.Candidate, cfg TradeConfig) (*candidate.TradeResult, *SkippedTrade) {
	eb, ok := entryBar(store, c.Ticker, c.ReportDate, cfg.EntryMode)
	if !ok {
		return nil, &SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: SkipNoPriceData}
	}
	if eb.Open <= 0 || eb.High <= 0 || eb.Low <= 0 || eb.Close <= 0 {
		return nil, &SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: SkipMissingOHLC}
	}
	entryPrice := eb.AdjustedOpen()
	if entryPrice <= 0 {
		return nil, &SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: SkipMissingOHLC}
	}
	shares := int(math.Floor(cfg.PositionSize / entryPrice))
	if shares == 0 {
		return nil, &SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: SkipZeroShares}
	}

	stopPrice := entryPrice * (1 - cfg.StopLossPct/100)
	bars := store.Bars(c.Ticker)
	idx := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(eb.Date) })

	result := &candidate.TradeResult{
		Ticker:      c.Ticker,
		Grade:       c.Grade,
		Score:       c.Score,
		ReportDate:  c.ReportDate,
		EntryDate:   eb.Date,
		EntryPrice:  entryPrice,
		Shares:      shares,
		Invested:    entryPrice * float64(shares),
		GapSize:     c.GapSize,
		CompanyName: c.CompanyName,
	}

	for i := idx; i < len(bars); i++ {
		b := bars[i]
		daysHeld := i - idx
		calendarDays := int(b.Date.Sub(eb.Date).Hours() / 24)

		if exitPrice, exited := checkStop(cfg.StopMode, b, bars, i, stopPrice, cfg.SlippagePct, daysHeld); exited {
			closeTrade(result, b.Date, exitPrice, candidate.ExitStopLoss)
			return result, nil
		}

		if cfg.MaxHoldingDays > 0 && calendarDays >= cfg.MaxHoldingDays && b.Close > 0 {
			closeTrade(result, b.Date, b.AdjustedClose(), candidate.ExitMaxHolding)
			return result, nil
		}
	}

	last := bars[len(bars)-1]
	closeTrade(result, last.Date, last.AdjustedClose(), candidate.ExitEndOfData)
	return result, nil
}

// checkStop applies the stop rule selected by mode to bar b (at index i
// in bars), per the trigger/execution-price table: intraday and
// skip_entry_day fire on adjusted_low <= stopPrice (skip_entry_day only
// once days held > 0); close fires on adjusted close <= stopPrice,
// executing at that close; close_next_open fires the same but executes
// on the following bar's adjusted open, falling back to today's
// adjusted close when there is no next bar.
func checkStop(mode StopMode, b pricebar.Bar, bars []pricebar.Bar, i int, stopPrice, slippagePct float64, daysHeld int) (float64, bool) {
	slip := 1 - slippagePct/100
	switch mode {
	case StopIntraday:
		if b.Low > 0 && b.AdjustedLow() <= stopPrice {
			return stopPrice * slip, true
		}
	case StopSkipEntryDay:
		if daysHeld > 0 && b.Low > 0 && b.AdjustedLow() <= stopPrice {
			return stopPrice * slip, true
		}
	case StopClose:
		if b.AdjustedClose() <= stopPrice {
			return b.AdjustedClose() * slip, true
		}
	case StopCloseNextOpen:
		if b.AdjustedClose() <= stopPrice {
			if i+1 < len(bars) {
				return bars[i+1].AdjustedOpen() * slip, true
			}
			return b.AdjustedClose() * slip, true
		}
	}
	return 0, false
}

func closeTrade(r *candidate.TradeResult, exitDate time.Time, exitPrice float64, reason candidate.ExitReason) {
	r.ExitDate = exitDate
	r.ExitPrice = exitPrice
	r.ExitReason = reason
	r.PnL = (exitPrice - r.EntryPrice) * float64(r.Shares)
	if r.EntryPrice > 0 {
		r.ReturnPct = (exitPrice/r.EntryPrice - 1) * 100
	}
	r.HoldingDays = int(exitDate.Sub(r.EntryDate).Hours() / 24)
}

// ApplyDailyEntryLimit ranks same-day candidates by score descending
// (missing score sorts last) via a stable sort — stability matters for
// determinism — caps the result at limit, and reports the overflow as
// SkipDailyLimit.
func ApplyDailyEntryLimit(cands []candidate.Candidate, limit int) ([]candidate.Candidate, []SkippedTrade) {
	if limit <= 0 || len(cands) <= limit {
		return cands, nil
	}
	ranked := make([]candidate.Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Score, ranked[j].Score
		if si == nil && sj == nil {
			return false
		}
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})
	kept := ranked[:limit]
	var overflow []SkippedTrade
	for _, c := range ranked[limit:] {
		overflow = append(overflow, SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: SkipDailyLimit})
	}
	return kept, overflow
}
