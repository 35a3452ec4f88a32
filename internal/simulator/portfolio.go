package simulator

import (
	"fmt"
	"sort"
	"time"

	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/trailingstop"
	"github.com/tradermonty/earningsgap/internal/weekly"
)

// OpenPosition is a candidate that has opened an in-progress simulated
// trade. Weekly bars and indicator values are recomputed lazily on
// week-end days and are never persisted.
type OpenPosition struct {
	candidate.Candidate
	EntryDate   time.Time
	EntryPrice  float64
	Shares      int
	Invested    float64
	StopPrice   float64
	PendingExit candidate.ExitReason // "" | stop_loss | trend_break
}

// PortfolioConfig parameterizes the five-phase scheduler.
type PortfolioConfig struct {
	EntryMode           EntryMode
	StopMode            StopMode
	PositionSize        float64
	StopLossPct         float64
	SlippagePct         float64
	MaxHoldingDays      int // 0 disables
	MaxPositions        int
	TrailingMode        trailingstop.Mode
	TrailingPeriod      int
	TrailingTransition  int
	TrailingStopEnabled bool
	DataEndDate         *time.Time
	DailyEntryLimit     int
}

// Portfolio is the day-by-day scheduler over a price store's trading
// dates, enforcing at most one open position per ticker and a maximum
// concurrent open count.
type Portfolio struct {
	cfg     PortfolioConfig
	store   *pricebar.Store
	open    map[string]*OpenPosition
	closed  []candidate.TradeResult
	skipped []SkippedTrade
}

// RunResult is the outcome of a full portfolio run.
type RunResult struct {
	Closed  []candidate.TradeResult
	Skipped []SkippedTrade
}

// NewPortfolio validates cfg and builds a Portfolio. A disabled
// max-holding and disabled trailing-stop together is an invalid
// configuration (§4.5's construction invariant).
func NewPortfolio(store *pricebar.Store, cfg PortfolioConfig) (*Portfolio, error) {
	if cfg.MaxHoldingDays <= 0 && !cfg.TrailingStopEnabled {
		return nil, fmt.Errorf("simulator: max holding and trailing stop cannot both be disabled")
	}
	return &Portfolio{
		cfg:   cfg,
		store: store,
		open:  make(map[string]*OpenPosition),
	}, nil
}

// Run drives the five-phase per-day pipeline over every trading date in
// the price store, optionally truncated at cfg.DataEndDate, against the
// given candidate list grouped by report date.
func (p *Portfolio) Run(candidates []candidate.Candidate) (*RunResult, error) {
	byDate := make(map[string][]candidate.Candidate)
	for _, c := range candidates {
		eb, ok := entryBar(p.store, c.Ticker, c.ReportDate, p.cfg.EntryMode)
		if !ok {
			p.skip(c, SkipNoPriceData)
			continue
		}
		k := eb.Date.Format("2006-01-02")
		byDate[k] = append(byDate[k], c)
	}

	dates := p.store.AllTradingDates()
	if p.cfg.DataEndDate != nil {
		cut := sort.Search(len(dates), func(i int) bool { return dates[i].After(*p.cfg.DataEndDate) })
		dates = dates[:cut]
	}

	for _, d := range dates {
		todays := byDate[d.Format("2006-01-02")]

		p.applyPendingExits(d)
		p.applyNewEntries(d, todays)
		p.applyStopLoss(d)
		p.applyTrailingStop(d)
		p.applyMaxHolding(d)

		logger.Infof("day %s: %d open, %d closed, %d skipped", d.Format("2006-01-02"), len(p.open), len(p.closed), len(p.skipped))
	}

	if len(dates) > 0 {
		p.closeAllAtEndOfData(dates[len(dates)-1])
	}

	return &RunResult{Closed: p.closed, Skipped: p.skipped}, nil
}

// sortedOpenTickers returns the currently open tickers in sorted order,
// so every phase that iterates open positions does so deterministically
// regardless of Go's randomized map iteration order.
func (p *Portfolio) sortedOpenTickers() []string {
	tickers := make([]string, 0, len(p.open))
	for t := range p.open {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// applyPendingExits is Phase 1 [Open]: positions tagged with a pending
// exit from a prior day close today at adjusted open x (1-slippage). If
// the ticker has no bar today, the pending flag is cleared and the
// position survives.
func (p *Portfolio) applyPendingExits(d time.Time) {
	for _, ticker := range p.sortedOpenTickers() {
		pos := p.open[ticker]
		if pos.PendingExit == "" {
			continue
		}
		bar, ok := p.store.Bar(ticker, d)
		if !ok {
			pos.PendingExit = ""
			continue
		}
		exitPrice := bar.AdjustedOpen() * (1 - p.cfg.SlippagePct/100)
		p.close(pos, d, exitPrice, pos.PendingExit)
		delete(p.open, ticker)
	}
}

// applyNewEntries is Phase 2 [Open]: today's candidates, sorted by score
// descending (absent score last), each either opens a position, rotates
// out the weakest open position, or is rejected with a SkippedTrade.
func (p *Portfolio) applyNewEntries(d time.Time, todays []candidate.Candidate) {
	ranked := make([]candidate.Candidate, len(todays))
	copy(ranked, todays)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Score, ranked[j].Score
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})

	rotatedToday := false

	for _, c := range ranked {
		if _, exists := p.open[c.Ticker]; exists {
			p.skip(c, SkipDuplicateTicker)
			continue
		}

		bar, ok := p.store.Bar(c.Ticker, d)
		if !ok {
			p.skip(c, SkipNoPriceData)
			continue
		}
		entryPrice := bar.AdjustedOpen()
		if entryPrice <= 0 {
			p.skip(c, SkipMissingOHLC)
			continue
		}
		shares := sharesFor(p.cfg.PositionSize, entryPrice)
		if shares == 0 {
			p.skip(c, SkipZeroShares)
			continue
		}

		if len(p.open) >= p.cfg.MaxPositions {
			if !rotatedToday && p.attemptRotation(d, c) {
				rotatedToday = true
				p.openPosition(c, d, bar, entryPrice, shares)
				continue
			}
			p.skip(c, SkipCapacityFull)
			continue
		}

		p.openPosition(c, d, bar, entryPrice, shares)
	}
}

func sharesFor(positionSize, entryPrice float64) int {
	if entryPrice <= 0 {
		return 0
	}
	shares := int(positionSize / entryPrice)
	return shares
}

func (p *Portfolio) openPosition(c candidate.Candidate, d time.Time, bar pricebar.Bar, entryPrice float64, shares int) {
	stopPrice := entryPrice * (1 - p.cfg.StopLossPct/100)
	p.open[c.Ticker] = &OpenPosition{
		Candidate:  c,
		EntryDate:  d,
		EntryPrice: entryPrice,
		Shares:     shares,
		Invested:   entryPrice * float64(shares),
		StopPrice:  stopPrice,
	}
}

func (p *Portfolio) skip(c candidate.Candidate, reason SkipReason) {
	p.skipped = append(p.skipped, SkippedTrade{Ticker: c.Ticker, ReportDate: c.ReportDate, Reason: reason})
}

// attemptRotation implements the rotation policy: the weakest open
// position by most-negative unrealized P&L is replaced only if its
// unrealized P&L is strictly negative and the incoming candidate's
// score strictly exceeds the weakest's. A position with no bar today is
// ineligible for rotation scanning.
func (p *Portfolio) attemptRotation(d time.Time, incoming candidate.Candidate) bool {
	var snapshots []PositionSnapshot
	for _, ticker := range p.sortedOpenTickers() {
		pos := p.open[ticker]
		snapshots = append(snapshots, PositionSnapshot{
			Ticker: ticker, EntryPrice: pos.EntryPrice, Shares: pos.Shares, Score: pos.Score,
		})
	}

	weakest, found := WeakestOpen(snapshots, func(ticker string) (float64, bool) {
		if _, ok := p.store.Bar(ticker, d); !ok {
			return 0, false
		}
		return p.store.PreviousClose(ticker, d)
	})
	if !found || !OutranksWeakest(incoming.Score, weakest) {
		return false
	}

	bar, ok := p.store.Bar(weakest.Ticker, d)
	if !ok {
		return false
	}
	exitPrice := bar.AdjustedOpen() * (1 - p.cfg.SlippagePct/100)
	p.close(p.open[weakest.Ticker], d, exitPrice, candidate.ExitRotatedOut)
	delete(p.open, weakest.Ticker)
	return true
}

// applyStopLoss is Phase 3 [Intraday]: applies the stop rule of C4 to
// every open position. close_next_open tags a pending exit instead of
// closing immediately; every other mode closes today at the
// stop-specific execution price.
func (p *Portfolio) applyStopLoss(d time.Time) {
	for _, ticker := range p.sortedOpenTickers() {
		pos, exists := p.open[ticker]
		if !exists || pos.PendingExit != "" {
			continue
		}
		bar, ok := p.store.Bar(ticker, d)
		if !ok {
			continue
		}
		daysHeld := int(d.Sub(pos.EntryDate).Hours() / 24)

		if p.cfg.StopMode == StopCloseNextOpen {
			if bar.AdjustedClose() <= pos.StopPrice {
				pos.PendingExit = candidate.ExitStopLoss
			}
			continue
		}

		bars := p.store.Bars(ticker)
		idx := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(d) })
		if idx == len(bars) {
			continue
		}
		exitPrice, exited := checkStop(p.cfg.StopMode, bar, bars, idx, pos.StopPrice, p.cfg.SlippagePct, daysHeld)
		if exited {
			p.close(pos, d, exitPrice, candidate.ExitStopLoss)
			delete(p.open, ticker)
		}
	}
}

// applyTrailingStop is Phase 4 [Close]: only on week-end days of a
// position's ticker, evaluates the shared trailing-stop kernel and tags
// a pending exit on trend break.
func (p *Portfolio) applyTrailingStop(d time.Time) {
	if !p.cfg.TrailingStopEnabled {
		return
	}
	for _, ticker := range p.sortedOpenTickers() {
		pos, exists := p.open[ticker]
		if !exists || pos.PendingExit != "" {
			continue
		}
		daily := p.store.Bars(ticker)
		if !weekly.IsWeekEndByDate(daily, d) {
			continue
		}
		res := trailingstop.Evaluate(p.store, ticker, pos.EntryDate, d, p.cfg.TrailingMode, p.cfg.TrailingPeriod, p.cfg.TrailingTransition)
		if res.ShouldExit {
			pos.PendingExit = candidate.ExitTrendBreak
		}
	}
}

// applyMaxHolding is Phase 5 [Close]: positions not already pending exit
// and with calendar_days >= max_holding_days close today at adjusted
// close with reason max_holding.
func (p *Portfolio) applyMaxHolding(d time.Time) {
	if p.cfg.MaxHoldingDays <= 0 {
		return
	}
	for _, ticker := range p.sortedOpenTickers() {
		pos, exists := p.open[ticker]
		if !exists || pos.PendingExit != "" {
			continue
		}
		calendarDays := int(d.Sub(pos.EntryDate).Hours() / 24)
		if calendarDays < p.cfg.MaxHoldingDays {
			continue
		}
		bar, ok := p.store.Bar(ticker, d)
		if !ok || bar.Close <= 0 {
			continue
		}
		p.close(pos, d, bar.AdjustedClose(), candidate.ExitMaxHolding)
		delete(p.open, ticker)
	}
}

func (p *Portfolio) closeAllAtEndOfData(lastDate time.Time) {
	for _, ticker := range p.sortedOpenTickers() {
		pos := p.open[ticker]
		reason := candidate.ExitEndOfData
		if pos.PendingExit != "" {
			reason = pos.PendingExit
		}
		bar, ok := p.store.Bar(ticker, lastDate)
		if !ok {
			continue
		}
		p.close(pos, lastDate, bar.AdjustedClose(), reason)
		delete(p.open, ticker)
	}
}

func (p *Portfolio) close(pos *OpenPosition, exitDate time.Time, exitPrice float64, reason candidate.ExitReason) {
	pnl := (exitPrice - pos.EntryPrice) * float64(pos.Shares)
	var returnPct float64
	if pos.EntryPrice > 0 {
		returnPct = (exitPrice/pos.EntryPrice - 1) * 100
	}
	p.closed = append(p.closed, candidate.TradeResult{
		Ticker:      pos.Ticker,
		Grade:       pos.Grade,
		Score:       pos.Score,
		ReportDate:  pos.ReportDate,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    exitDate,
		ExitPrice:   exitPrice,
		Shares:      pos.Shares,
		Invested:    pos.Invested,
		PnL:         pnl,
		ReturnPct:   returnPct,
		HoldingDays: int(exitDate.Sub(pos.EntryDate).Hours() / 24),
		ExitReason:  reason,
		GapSize:     pos.GapSize,
		CompanyName: pos.CompanyName,
	})
}
