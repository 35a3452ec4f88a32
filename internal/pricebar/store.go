package pricebar

import (
	"sort"
	"time"

	"github.com/tradermonty/earningsgap/internal/logger"
)

// Store is a date-indexed mapping from ticker to an ordered sequence of
// price bars, plus the union-sorted list of all trading dates observed
// across every ticker.
type Store struct {
	byTicker map[string][]Bar
	dates    []time.Time
}

// NewStore builds a Store from raw per-ticker bars. Bars violating the
// high>=low invariant are dropped with a logged note; the remainder are
// sorted ascending by date per ticker.
func NewStore(raw map[string][]Bar) *Store {
	s := &Store{byTicker: make(map[string][]Bar, len(raw))}
	dateSet := make(map[int64]time.Time)

	for ticker, bars := range raw {
		clean := make([]Bar, 0, len(bars))
		for _, b := range bars {
			if !b.Valid() {
				logger.Infof("pricebar: dropped bar %s %s: high<low", ticker, b.Date.Format("2006-01-02"))
				continue
			}
			clean = append(clean, b)
		}
		sort.Slice(clean, func(i, j int) bool { return clean[i].Date.Before(clean[j].Date) })
		s.byTicker[ticker] = clean
		for _, b := range clean {
			dateSet[b.Date.UnixNano()] = b.Date
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	s.dates = dates
	return s
}

// Bar returns the bar for ticker on date d, if present.
func (s *Store) Bar(ticker string, d time.Time) (Bar, bool) {
	bars := s.byTicker[ticker]
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(d) })
	if i < len(bars) && bars[i].Date.Equal(d) {
		return bars[i], true
	}
	return Bar{}, false
}

// PreviousClose returns the nearest adjusted close strictly before d.
func (s *Store) PreviousClose(ticker string, d time.Time) (float64, bool) {
	bars := s.byTicker[ticker]
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(d) })
	if i == 0 {
		return 0, false
	}
	return bars[i-1].AdjustedClose(), true
}

// BarsUpTo returns the prefix of ticker's bars on or before d.
func (s *Store) BarsUpTo(ticker string, d time.Time) []Bar {
	bars := s.byTicker[ticker]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(d) })
	out := make([]Bar, i)
	copy(out, bars[:i])
	return out
}

// Bars returns the full ordered bar sequence for ticker.
func (s *Store) Bars(ticker string) []Bar {
	bars := s.byTicker[ticker]
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}

// AllTradingDates returns the sorted union of trading dates across every
// ticker in the store.
func (s *Store) AllTradingDates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// FirstBarAfter returns the first bar for ticker strictly after d
// (the "next_day_open" entry-mode rule).
func (s *Store) FirstBarAfter(ticker string, d time.Time) (Bar, bool) {
	bars := s.byTicker[ticker]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date.After(d) })
	if i < len(bars) {
		return bars[i], true
	}
	return Bar{}, false
}

// FirstBarOnOrAfter returns the first bar for ticker on or after d
// (the "report_open" entry-mode rule).
func (s *Store) FirstBarOnOrAfter(ticker string, d time.Time) (Bar, bool) {
	bars := s.byTicker[ticker]
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(d) })
	if i < len(bars) {
		return bars[i], true
	}
	return Bar{}, false
}
