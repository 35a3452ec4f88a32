// Package weekly implements the weekly rule kernel shared by the backtest
// simulator and the live trailing-stop evaluator: daily-to-weekly bar
// aggregation, EMA and N-week-low indicators, and trend-break detection.
// Every function here is pure and deterministic, no I/O, so that the same
// inputs produce the same outputs in both the backtest and live code paths.
package weekly

import (
	"math"
	"time"

	"github.com/tradermonty/earningsgap/internal/pricebar"
)

// Bar is one weekly aggregate, derived from consecutive daily bars sharing
// the same ISO (year, week).
type Bar struct {
	WeekStart, WeekEnding  time.Time
	Open, High, Low, Close float64
	Volume                 float64
}

type isoKey struct {
	year, week int
}

// AggregateDailyToWeekly groups bars by ISO (year, week), preserving the
// insertion order of the first occurrence of each week (a slice of keys
// in first-seen order plus an index map). Each group emits one weekly
// bar built from adjusted prices: open = first adjusted open, high = max
// adjusted high, low = min adjusted low, close = last adjusted close,
// volume = sum.
func AggregateDailyToWeekly(bars []pricebar.Bar) []Bar {
	order := make([]isoKey, 0)
	groups := make(map[isoKey][]pricebar.Bar)

	for _, b := range bars {
		y, w := b.Date.ISOWeek()
		k := isoKey{y, w}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], b)
	}

	out := make([]Bar, 0, len(order))
	for _, k := range order {
		g := groups[k]
		wb := Bar{
			WeekStart:  g[0].Date,
			WeekEnding: g[len(g)-1].Date,
			Open:       g[0].AdjustedOpen(),
			Close:      g[len(g)-1].AdjustedClose(),
		}
		high := g[0].AdjustedHigh()
		low := g[0].AdjustedLow()
		var vol float64
		for _, d := range g {
			if h := d.AdjustedHigh(); h > high {
				high = h
			}
			if l := d.AdjustedLow(); l < low {
				low = l
			}
			vol += d.Volume
		}
		wb.High = high
		wb.Low = low
		wb.Volume = vol
		out = append(out, wb)
	}
	return out
}

// round6 rounds to 6 fractional digits for deterministic indicator values
// across platforms.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// EMA returns one value per weekly bar; the first period-1 entries are
// nil (absent). Index period-1 seeds with the simple mean of closes
// [0..period-1]; thereafter ema[i] = close[i]*k + ema[i-1]*(1-k) with
// k = 2/(period+1). Values are rounded to 6 decimal places.
func EMA(weekly []Bar, period int) []*float64 {
	out := make([]*float64, len(weekly))
	if period <= 0 || len(weekly) < period {
		return out
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += weekly[i].Close
	}
	seed := round6(sum / float64(period))
	out[period-1] = &seed

	k := 2.0 / float64(period+1)
	prev := seed
	for i := period; i < len(weekly); i++ {
		v := round6(weekly[i].Close*k + prev*(1-k))
		out[i] = &v
		prev = v
	}
	return out
}

// NWeekLow returns one value per weekly bar; indices < period are absent.
// Otherwise the value is min(low[i-period..i-1]) — the current week is
// deliberately excluded so that close[i] < low_window is a meaningful
// break signal.
func NWeekLow(weekly []Bar, period int) []*float64 {
	out := make([]*float64, len(weekly))
	if period <= 0 {
		return out
	}
	for i := period; i < len(weekly); i++ {
		min := weekly[i-period].Low
		for j := i - period + 1; j < i; j++ {
			if weekly[j].Low < min {
				min = weekly[j].Low
			}
		}
		v := round6(min)
		out[i] = &v
	}
	return out
}

// IsTrendBroken finds the last weekly bar with week_ending <= asOf. If no
// such bar exists, or its indicator is absent, found is false. Otherwise
// broken = close < indicator.
func IsTrendBroken(weekly []Bar, indicator []*float64, asOf time.Time) (broken bool, found bool) {
	idx := -1
	for i, b := range weekly {
		if !b.WeekEnding.After(asOf) {
			idx = i
		} else {
			break
		}
	}
	if idx < 0 || indicator[idx] == nil {
		return false, false
	}
	return weekly[idx].Close < *indicator[idx], true
}

// CountCompletedWeeks counts weekly bars with week_start > entryDate and
// week_ending <= asOf. The entry week is never counted, even on a Monday
// entry.
func CountCompletedWeeks(weekly []Bar, entryDate, asOf time.Time) int {
	n := 0
	for _, b := range weekly {
		if b.WeekStart.After(entryDate) && !b.WeekEnding.After(asOf) {
			n++
		}
	}
	return n
}

// IsWeekEndByDate reports whether d is a week end: true iff d appears in
// the daily sequence and the next daily bar (if any) belongs to a
// different ISO week. When there is no next bar, d is also treated as a
// week end — the fetched window's last day may be a mid-week day; callers
// must scope the lookback window so this does not produce a spurious
// mid-week trend-break decision.
func IsWeekEndByDate(daily []pricebar.Bar, d time.Time) bool {
	idx := -1
	for i, b := range daily {
		if b.Date.Equal(d) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	if idx == len(daily)-1 {
		return true
	}
	y1, w1 := daily[idx].Date.ISOWeek()
	y2, w2 := daily[idx+1].Date.ISOWeek()
	return y1 != y2 || w1 != w2
}
