package simulator

import (
	"testing"
	"time"

	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/trailingstop"
)

func flatBars(ticker string, start time.Time, n int, price float64) []pricebar.Bar {
	var out []pricebar.Bar
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, pricebar.Bar{Ticker: ticker, Date: d, Open: price, High: price + 1, Low: price - 1, Close: price})
	}
	return out
}

func baseCfg() PortfolioConfig {
	return PortfolioConfig{
		EntryMode:      EntryNextDayOpen,
		StopMode:       StopIntraday,
		PositionSize:   1000,
		StopLossPct:    10,
		SlippagePct:    0,
		MaxHoldingDays: 30,
		MaxPositions:   1,
	}
}

func TestNewPortfolioRejectsBothExitsDisabled(t *testing.T) {
	store := pricebar.NewStore(map[string][]pricebar.Bar{})
	cfg := baseCfg()
	cfg.MaxHoldingDays = 0
	cfg.TrailingStopEnabled = false
	if _, err := NewPortfolio(store, cfg); err == nil {
		t.Fatalf("expected error when max holding and trailing stop both disabled")
	}
}

func TestPortfolioEnforcesMaxPositionsCapacity(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	data := map[string][]pricebar.Bar{
		"AAA": flatBars("AAA", start, 20, 100),
		"BBB": flatBars("BBB", start, 20, 100),
	}
	store := pricebar.NewStore(data)
	cfg := baseCfg()
	cfg.MaxPositions = 1

	port, err := NewPortfolio(store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sA, sB := 80.0, 50.0
	cands := []candidate.Candidate{
		{Ticker: "AAA", ReportDate: start, Score: &sA},
		{Ticker: "BBB", ReportDate: start, Score: &sB},
	}
	result, err := port.Run(cands)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	foundCapacityFull := false
	for _, sk := range result.Skipped {
		if sk.Reason == SkipCapacityFull {
			foundCapacityFull = true
		}
	}
	if !foundCapacityFull {
		t.Fatalf("expected a capacity_full skip when two candidates compete for one slot with no rotation eligibility, got skipped=%+v", result.Skipped)
	}
}

func TestPortfolioRotatesWhenIncomingScoreHigher(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	data := map[string][]pricebar.Bar{
		"WEAK":   flatBars("WEAK", start, 20, 100),
		"STRONG": flatBars("STRONG", start.AddDate(0, 0, 2), 20, 100),
	}
	// depress WEAK's price after entry so its unrealized P&L goes negative,
	// but not enough to trigger its own intraday stop (stop price 90)
	for i, b := range data["WEAK"] {
		if b.Date.After(start.AddDate(0, 0, 1)) {
			b.Open, b.High, b.Low, b.Close = 95, 96, 94, 95
			data["WEAK"][i] = b
		}
	}
	store := pricebar.NewStore(data)
	cfg := baseCfg()
	cfg.MaxPositions = 1

	port, err := NewPortfolio(store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	weakScore, strongScore := 50.0, 90.0
	cands := []candidate.Candidate{
		{Ticker: "WEAK", ReportDate: start, Score: &weakScore},
		{Ticker: "STRONG", ReportDate: start.AddDate(0, 0, 2), Score: &strongScore},
	}
	result, err := port.Run(cands)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	foundRotation := false
	for _, tr := range result.Closed {
		if tr.Ticker == "WEAK" && tr.ExitReason == candidate.ExitRotatedOut {
			foundRotation = true
		}
	}
	if !foundRotation {
		t.Fatalf("expected WEAK to be rotated out, got closed=%+v", result.Closed)
	}
}

// uptrendThenDropBars mirrors trailingstop_test.go's buildUptrendThenDrop
// fixture (unexported there, so duplicated here): a steady uptrend from
// 2025-09-29 through three weeks, a single-week drop ending 2025-10-24,
// then one more week of flat recovery bars. The trailing week exists so
// a mid-week trend-break trigger (the bug: every day looks like a week
// end) and a Friday-only trigger (the fix) close on different dates,
// which is what this test tells apart.
func uptrendThenDropBars() []pricebar.Bar {
	var bars []pricebar.Bar
	price := 100.0
	d := time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC)
	for w := 0; w < 3; w++ {
		for i := 0; i < 5; i++ {
			day := d.AddDate(0, 0, i)
			bars = append(bars, pricebar.Bar{Ticker: "AAA", Date: day, Open: price, High: price + 2, Low: price - 2, Close: price})
			price += 1
		}
		d = d.AddDate(0, 0, 7)
	}
	dropPrice := 80.0
	for i := 0; i < 5; i++ {
		day := d.AddDate(0, 0, i)
		bars = append(bars, pricebar.Bar{Ticker: "AAA", Date: day, Open: dropPrice, High: dropPrice + 1, Low: dropPrice - 1, Close: dropPrice})
	}
	d = d.AddDate(0, 0, 7)
	recoveryPrice := 85.0
	for i := 0; i < 5; i++ {
		day := d.AddDate(0, 0, i)
		bars = append(bars, pricebar.Bar{Ticker: "AAA", Date: day, Open: recoveryPrice, High: recoveryPrice + 1, Low: recoveryPrice - 1, Close: recoveryPrice})
	}
	return bars
}

func TestPortfolioTrailingStopExitsOnTrueWeekEndingDate(t *testing.T) {
	bars := uptrendThenDropBars()
	store := pricebar.NewStore(map[string][]pricebar.Bar{"AAA": bars})

	cfg := baseCfg()
	cfg.EntryMode = EntryReportOpen
	cfg.StopLossPct = 50 // wide enough that the drop week never trips the plain stop-loss first
	cfg.MaxHoldingDays = 60
	cfg.TrailingStopEnabled = true
	cfg.TrailingMode = trailingstop.ModeWeeklyEMA
	cfg.TrailingPeriod = 3
	cfg.TrailingTransition = 2

	port, err := NewPortfolio(store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entryDate := time.Date(2025, 9, 29, 0, 0, 0, 0, time.UTC)
	score := 80.0
	cands := []candidate.Candidate{{Ticker: "AAA", ReportDate: entryDate, Score: &score}}

	result, err := port.Run(cands)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	var trendBreak *candidate.TradeResult
	for i, tr := range result.Closed {
		if tr.Ticker == "AAA" && tr.ExitReason == candidate.ExitTrendBreak {
			trendBreak = &result.Closed[i]
		}
	}
	if trendBreak == nil {
		t.Fatalf("expected an ExitTrendBreak close, got closed=%+v", result.Closed)
	}

	// The trend break is detected at the drop week's Friday close
	// (2025-10-24) and executed at the next trading day's open
	// (2025-10-27, the following Monday). A mid-week trigger (the bug)
	// would instead tag the pending exit days earlier and close on an
	// earlier date within the drop week itself.
	wantExit := time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)
	if !trendBreak.ExitDate.Equal(wantExit) {
		t.Fatalf("expected trend break to execute on the trading day after the true week-ending date, got %s (an earlier exit means the week-end gate fired mid-week)",
			trendBreak.ExitDate.Format("2006-01-02"))
	}
}

func TestPortfolioAtMostOneOpenPerTicker(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	data := map[string][]pricebar.Bar{
		"AAA": flatBars("AAA", start, 20, 100),
	}
	store := pricebar.NewStore(data)
	cfg := baseCfg()
	cfg.MaxPositions = 5

	port, err := NewPortfolio(store, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	score := 80.0
	cands := []candidate.Candidate{
		{Ticker: "AAA", ReportDate: start, Score: &score},
		{Ticker: "AAA", ReportDate: start, Score: &score},
	}
	result, err := port.Run(cands)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	foundDup := false
	for _, sk := range result.Skipped {
		if sk.Reason == SkipDuplicateTicker {
			foundDup = true
		}
	}
	if !foundDup {
		t.Fatalf("expected duplicate_ticker skip for second AAA candidate same day, got %+v", result.Skipped)
	}
}
