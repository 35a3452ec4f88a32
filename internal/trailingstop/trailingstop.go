// Package trailingstop evaluates the trailing-stop rule shared by the
// backtest portfolio simulator (phase 4) and the live signal generator:
// given a ticker's price history, has its weekly trend broken since
// entry.
package trailingstop

import (
	"time"

	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/weekly"
)

// Mode selects which weekly indicator governs the trend-break test.
// Tag-dispatched rather than subclassed, matching this codebase's
// preference for behavior tables keyed on a string tag over an
// inheritance hierarchy.
type Mode string

const (
	ModeWeeklyEMA      Mode = "weekly_ema"
	ModeWeeklyNWeekLow Mode = "weekly_nweek_low"
)

// DefaultLookbackDays bounds the start of the daily-bar fetch window.
// The window always ends at the as-of date, so the "no next bar ⇒ week
// end" rule in weekly.IsWeekEndByDate treats the as-of date as a week
// end even when it falls mid-week.
const DefaultLookbackDays = 400

// Result carries every intermediate value needed both to decide and to
// log the trailing-stop evaluation.
type Result struct {
	IsWeekEnd      bool
	CompletedWeeks int
	TransitionMet  bool
	TrendBroken    bool
	ShouldExit     bool
	Indicator      float64
	Close          float64
}

// Evaluate fetches ticker's bars in a DefaultLookbackDays window ending
// at asOf, aggregates to weekly, computes the configured indicator, and
// reports whether the trailing stop should fire. It fails soft on
// missing or insufficient data: ShouldExit is false and there is no error
// return.
func Evaluate(store *pricebar.Store, ticker string, entryDate, asOf time.Time, mode Mode, period, transitionWeeks int) Result {
	from := asOf.AddDate(0, 0, -DefaultLookbackDays)
	daily := windowBars(store.BarsUpTo(ticker, asOf), from)
	if len(daily) == 0 {
		return Result{}
	}

	isWeekEnd := weekly.IsWeekEndByDate(daily, asOf)

	weeklyBars := weekly.AggregateDailyToWeekly(daily)
	if len(weeklyBars) == 0 {
		return Result{IsWeekEnd: isWeekEnd}
	}

	var indicator []*float64
	switch mode {
	case ModeWeeklyNWeekLow:
		indicator = weekly.NWeekLow(weeklyBars, period)
	default:
		indicator = weekly.EMA(weeklyBars, period)
	}

	broken, found := weekly.IsTrendBroken(weeklyBars, indicator, asOf)
	completed := weekly.CountCompletedWeeks(weeklyBars, entryDate, asOf)
	transitionMet := completed >= transitionWeeks

	res := Result{
		IsWeekEnd:      isWeekEnd,
		CompletedWeeks: completed,
		TransitionMet:  transitionMet,
		TrendBroken:    found && broken,
		Close:          weeklyBars[len(weeklyBars)-1].Close,
	}
	if found {
		idx := len(weeklyBars) - 1
		for i, b := range weeklyBars {
			if !b.WeekEnding.After(asOf) {
				idx = i
			}
		}
		if indicator[idx] != nil {
			res.Indicator = *indicator[idx]
		}
	}
	res.ShouldExit = res.IsWeekEnd && res.TransitionMet && res.TrendBroken
	return res
}

func windowBars(bars []pricebar.Bar, from time.Time) []pricebar.Bar {
	out := make([]pricebar.Bar, 0, len(bars))
	for _, b := range bars {
		if !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out
}
