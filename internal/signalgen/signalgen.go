package signalgen

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/simulator"
	"github.com/tradermonty/earningsgap/internal/state"
	"github.com/tradermonty/earningsgap/internal/trailingstop"
)

const dateLayout = "2006-01-02"

var gradeRank = map[string]int{"A": 4, "B": 3, "C": 2, "D": 1}

// generator holds the fixed inputs to one GenerateSignals call, the
// same role the teacher's planner struct plays for one option-strategy
// plan: every step below is a method on it, called once in sequence,
// no branching abstraction layer above the straight-line call order.
type generator struct {
	ctx        context.Context
	tradeDate  time.Time
	store      *state.Store
	priceStore *pricebar.Store
	broker     broker.Broker
	cfg        Config
	runID      string
}

// GenerateSignals runs the eight §4.6 steps for tradeDate against
// candidates, producing the execution (ema_p10) and shadow (nwl_p4)
// signal sets. priceStore supplies current prices for reconciliation
// and rotation scoring; the trailing-stop evaluation itself reads
// directly from it through internal/trailingstop.
func GenerateSignals(ctx context.Context, tradeDate time.Time, candidates []candidate.Candidate,
	store *state.Store, priceStore *pricebar.Store, brk broker.Broker, cfg Config, runID string) (*SignalFile, *SignalFile, error) {

	g := &generator{ctx: ctx, tradeDate: tradeDate, store: store, priceStore: priceStore, broker: brk, cfg: cfg, runID: runID}

	// Step 1.
	killed, err := store.KillSwitch()
	if err != nil {
		return nil, nil, fmt.Errorf("signalgen: kill switch check: %w", err)
	}
	if killed {
		return nil, nil, apperrors.ErrKillSwitch("kill switch is engaged")
	}

	// Step 2.
	ranked := g.filterAndRank(candidates)

	// Step 3.
	openPositions, err := store.OpenPositions()
	if err != nil {
		return nil, nil, fmt.Errorf("signalgen: open positions: %w", err)
	}
	if err := g.reconcile(openPositions); err != nil {
		return nil, nil, err
	}

	execFile, err := g.buildSignalFile(StrategyEMA10, cfg.Execution, openPositions, ranked)
	if err != nil {
		return nil, nil, fmt.Errorf("signalgen: execution signals: %w", err)
	}
	shadowFile, err := g.buildShadowFile(cfg.Shadow, ranked)
	if err != nil {
		return nil, nil, fmt.Errorf("signalgen: shadow signals: %w", err)
	}

	return execFile, shadowFile, nil
}

// filterAndRank is Step 2: candidates at or above MinGrade, sorted by
// score descending with absent scores last.
func (g *generator) filterAndRank(candidates []candidate.Candidate) []candidate.Candidate {
	minRank := gradeRank[g.cfg.MinGrade]
	out := make([]candidate.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if gradeRank[string(c.Grade)] >= minRank {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score, out[j].Score
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})
	return out
}

// reconcile is Step 3: the persistent position set must match the
// brokerage's live position set by ticker and share count.
func (g *generator) reconcile(openPositions []state.Position) error {
	if g.broker == nil {
		return nil
	}
	brokerPositions, err := g.broker.ListPositions(g.ctx)
	if err != nil {
		return fmt.Errorf("signalgen: list broker positions: %w", err)
	}

	byTicker := make(map[string]int, len(brokerPositions))
	for _, p := range brokerPositions {
		byTicker[p.Ticker] = p.Quantity
	}

	var mismatches []string
	seen := make(map[string]bool, len(openPositions))
	for _, p := range openPositions {
		seen[p.Ticker] = true
		qty, ok := byTicker[p.Ticker]
		if !ok || qty != p.ActualShares {
			mismatches = append(mismatches, fmt.Sprintf("%s: store=%d broker=%d (present=%v)", p.Ticker, p.ActualShares, qty, ok))
		}
	}
	for ticker := range byTicker {
		if !seen[ticker] {
			mismatches = append(mismatches, fmt.Sprintf("%s: store=absent broker=%d", ticker, byTicker[ticker]))
		}
	}

	if len(mismatches) == 0 {
		return nil
	}
	sort.Strings(mismatches)
	if g.cfg.Force {
		logger.Errorf("signalgen: reconciliation mismatch (forced): %v", mismatches)
		return nil
	}
	return apperrors.ErrReconciliation(fmt.Sprintf("position mismatch: %v", mismatches))
}

// buildSignalFile runs steps 4-7 for the execution strategy and writes
// the exits/entries/skipped/summary the executor consumes.
func (g *generator) buildSignalFile(strategy Strategy, tsc TrailingStopConfig,
	openPositions []state.Position, ranked []candidate.Candidate) (*SignalFile, error) {

	before := len(openPositions)
	exits, exitingTickers := g.evaluateTrendBreaks(openPositions, tsc)

	held := make(map[string]bool, len(openPositions))
	for _, p := range openPositions {
		held[p.Ticker] = true
	}

	var skipped []SkippedEntry
	var entries []EntryEntry

	openAfterExits := before - len(exitingTickers)
	slots := g.cfg.MaxPositions - openAfterExits

	// Step 5: rotation, at most implicit via one pass before capacity fill.
	if slots <= 0 && len(ranked) > 0 {
		if rotExit, rotEntry, ok := g.attemptRotation(openPositions, exitingTickers, ranked[0]); ok {
			exits = append(exits, rotExit)
			entries = append(entries, rotEntry)
			exitingTickers[rotExit.Ticker] = true
			ranked = ranked[1:]
			slots++
		}
	}

	// Step 6-7: remaining capacity fills from ranked candidates.
	for _, c := range ranked {
		if slots <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "capacity_full", Score: c.Score})
			continue
		}
		if held[c.Ticker] || exitingTickers[c.Ticker] {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "already_held", Score: c.Score})
			continue
		}

		price, ok := g.priceStore.PreviousClose(c.Ticker, g.tradeDate)
		if !ok || price <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "no_price_data", Score: c.Score})
			continue
		}
		qty := int(math.Floor(g.cfg.PositionSize / price))
		if qty <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "zero_shares", Score: c.Score})
			continue
		}
		stopPrice := math.Round(price*(1-g.cfg.StopLossPct/100)*100) / 100

		entries = append(entries, EntryEntry{
			Ticker: c.Ticker, Side: "buy", Qty: qty, Score: c.Score, Grade: string(c.Grade),
			ReportDate: c.ReportDate.Format(dateLayout), CompanyName: c.CompanyName, StopPrice: stopPrice,
		})
		slots--
	}

	after := before - len(exits) + countBuys(entries)

	return &SignalFile{
		TradeDate: g.tradeDate.Format(dateLayout), Strategy: strategy, RunID: g.runID,
		GeneratedAt: g.cfg.GeneratedAt, Exits: exits, Entries: entries, Skipped: skipped,
		Summary: Summary{
			TotalExits: len(exits), TotalEntries: len(entries), TotalSkipped: len(skipped),
			OpenPositionsBefore: before, OpenPositionsAfter: after,
		},
	}, nil
}

func countBuys(entries []EntryEntry) int {
	n := 0
	for _, e := range entries {
		if e.Side == "buy" {
			n++
		}
	}
	return n
}

// evaluateTrendBreaks is Step 4: every open position is checked against
// the strategy's trailing-stop rule; ShouldExit emits a trend_break
// exit.
func (g *generator) evaluateTrendBreaks(openPositions []state.Position, tsc TrailingStopConfig) ([]ExitEntry, map[string]bool) {
	var exits []ExitEntry
	exiting := make(map[string]bool)

	for _, p := range openPositions {
		res := trailingstop.Evaluate(g.priceStore, p.Ticker, p.EntryDate, g.tradeDate, tsc.Mode, tsc.Period, tsc.TransitionWeeks)
		if !res.ShouldExit {
			continue
		}
		exits = append(exits, ExitEntry{
			Ticker: p.Ticker, PositionID: p.Ticker, Reason: "trend_break",
			Qty: p.ActualShares, EntryPrice: p.EntryPrice, StopOrderID: p.StopOrderID,
		})
		exiting[p.Ticker] = true
	}
	return exits, exiting
}

// attemptRotation is Step 5: capacity full, incoming candidate outranks
// the weakest open (not already exiting) position.
func (g *generator) attemptRotation(openPositions []state.Position, exiting map[string]bool, incoming candidate.Candidate) (ExitEntry, EntryEntry, bool) {
	var snapshots []simulator.PositionSnapshot
	byTicker := make(map[string]state.Position, len(openPositions))
	for _, p := range openPositions {
		if exiting[p.Ticker] {
			continue
		}
		byTicker[p.Ticker] = p
		snapshots = append(snapshots, simulator.PositionSnapshot{Ticker: p.Ticker, EntryPrice: p.EntryPrice, Shares: p.ActualShares, Score: p.Score})
	}

	weakest, found := simulator.WeakestOpen(snapshots, func(ticker string) (float64, bool) {
		return g.priceStore.PreviousClose(ticker, g.tradeDate)
	})
	if !found || !simulator.OutranksWeakest(incoming.Score, weakest) {
		return ExitEntry{}, EntryEntry{}, false
	}

	pos := byTicker[weakest.Ticker]
	exit := ExitEntry{Ticker: pos.Ticker, PositionID: pos.Ticker, Reason: "rotated_out", Qty: pos.ActualShares, EntryPrice: pos.EntryPrice, StopOrderID: pos.StopOrderID}

	price, _ := g.priceStore.PreviousClose(incoming.Ticker, g.tradeDate)
	qty := int(math.Floor(g.cfg.PositionSize / price))
	stopPrice := math.Round(price*(1-g.cfg.StopLossPct/100)*100) / 100
	entry := EntryEntry{
		Ticker: incoming.Ticker, Side: "buy", Qty: qty, Score: incoming.Score, Grade: string(incoming.Grade),
		ReportDate: incoming.ReportDate.Format(dateLayout), CompanyName: incoming.CompanyName, StopPrice: stopPrice,
	}
	return exit, entry, true
}

// buildShadowFile runs steps 4-8 for the shadow strategy: never
// executed, only recorded in the shadow book unless DryRun.
func (g *generator) buildShadowFile(tsc TrailingStopConfig, ranked []candidate.Candidate) (*SignalFile, error) {
	shadowPositions, err := g.store.ShadowPositions()
	if err != nil {
		return nil, fmt.Errorf("shadow positions: %w", err)
	}

	before := len(shadowPositions)
	var exits []ExitEntry
	held := make(map[string]bool, len(shadowPositions))
	for _, p := range shadowPositions {
		held[p.Ticker] = true
		res := trailingstop.Evaluate(g.priceStore, p.Ticker, p.EntryDate, g.tradeDate, tsc.Mode, tsc.Period, tsc.TransitionWeeks)
		if !res.ShouldExit {
			continue
		}
		exitPrice := res.Close
		exits = append(exits, ExitEntry{Ticker: p.Ticker, Reason: "trend_break", Qty: p.Shares, EntryPrice: p.EntryPrice})
		if !g.cfg.DryRun {
			if err := g.store.ShadowClose(p.Ticker, state.ExitInfo{ExitDate: g.tradeDate, ExitPrice: exitPrice, ExitReason: "trend_break"}); err != nil {
				return nil, fmt.Errorf("shadow close %s: %w", p.Ticker, err)
			}
		}
	}

	slots := g.cfg.MaxPositions - (before - len(exits))
	var entries []EntryEntry
	var skipped []SkippedEntry
	for _, c := range ranked {
		if slots <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "capacity_full", Score: c.Score})
			continue
		}
		if held[c.Ticker] {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "already_held", Score: c.Score})
			continue
		}
		price, ok := g.priceStore.PreviousClose(c.Ticker, g.tradeDate)
		if !ok || price <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "no_price_data", Score: c.Score})
			continue
		}
		qty := int(math.Floor(g.cfg.PositionSize / price))
		if qty <= 0 {
			skipped = append(skipped, SkippedEntry{Ticker: c.Ticker, Reason: "zero_shares", Score: c.Score})
			continue
		}
		entries = append(entries, EntryEntry{
			Ticker: c.Ticker, Side: "buy", Qty: qty, Score: c.Score, Grade: string(c.Grade),
			ReportDate: c.ReportDate.Format(dateLayout), CompanyName: c.CompanyName,
			StopPrice: math.Round(price*(1-g.cfg.StopLossPct/100)*100) / 100,
		})
		if !g.cfg.DryRun {
			if err := g.store.ShadowOpen(state.ShadowPosition{Ticker: c.Ticker, EntryDate: g.tradeDate, EntryPrice: price, Shares: qty}); err != nil {
				return nil, fmt.Errorf("shadow open %s: %w", c.Ticker, err)
			}
		}
		slots--
	}

	after := before - len(exits) + countBuys(entries)
	return &SignalFile{
		TradeDate: g.tradeDate.Format(dateLayout), Strategy: StrategyNWL4, RunID: g.runID,
		GeneratedAt: g.cfg.GeneratedAt, Exits: exits, Entries: entries, Skipped: skipped,
		Summary: Summary{
			TotalExits: len(exits), TotalEntries: len(entries), TotalSkipped: len(skipped),
			OpenPositionsBefore: before, OpenPositionsAfter: after,
		},
	}, nil
}
