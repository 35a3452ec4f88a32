package weekly

import (
	"testing"
	"time"

	"github.com/tradermonty/earningsgap/internal/pricebar"
)

func dt(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func daily(ticker string, d time.Time, o, h, l, c float64) pricebar.Bar {
	return pricebar.Bar{Ticker: ticker, Date: d, Open: o, High: h, Low: l, Close: c}
}

func TestAggregateDailyToWeekly(t *testing.T) {
	bars := []pricebar.Bar{
		daily("AAA", dt(2025, 1, 6), 10, 12, 9, 11),  // Mon wk2
		daily("AAA", dt(2025, 1, 7), 11, 13, 10, 12), // Tue wk2
		daily("AAA", dt(2025, 1, 13), 12, 14, 11, 13), // Mon wk3
	}
	weekly := AggregateDailyToWeekly(bars)
	if len(weekly) != 2 {
		t.Fatalf("expected 2 weekly bars, got %d", len(weekly))
	}
	w1 := weekly[0]
	if w1.Open != 10 || w1.Close != 12 || w1.High != 13 || w1.Low != 9 {
		t.Fatalf("unexpected week 1 aggregate: %+v", w1)
	}
	if !w1.WeekStart.Equal(dt(2025, 1, 6)) || !w1.WeekEnding.Equal(dt(2025, 1, 7)) {
		t.Fatalf("unexpected week bounds: %+v", w1)
	}
}

func TestEMASeedAndRecurrence(t *testing.T) {
	weekly := []Bar{
		{Close: 10}, {Close: 20}, {Close: 30}, {Close: 40},
	}
	ema := EMA(weekly, 3)
	if ema[0] != nil || ema[1] != nil {
		t.Fatalf("expected first period-1 values absent")
	}
	if ema[2] == nil || *ema[2] != 20 {
		t.Fatalf("expected seed mean 20 at index 2, got %v", ema[2])
	}
	k := 2.0 / 4.0
	want := round6(40*k + 20*(1-k))
	if ema[3] == nil || *ema[3] != want {
		t.Fatalf("expected ema[3]=%v, got %v", want, ema[3])
	}
}

func TestNWeekLowExcludesCurrentWeek(t *testing.T) {
	weekly := []Bar{
		{Low: 5}, {Low: 3}, {Low: 8}, {Low: 1},
	}
	low := NWeekLow(weekly, 2)
	if low[0] != nil || low[1] != nil {
		t.Fatalf("expected first period values absent")
	}
	if low[2] == nil || *low[2] != 3 {
		t.Fatalf("expected min(5,3)=3 at index 2, got %v", low[2])
	}
	if low[3] == nil || *low[3] != 3 {
		t.Fatalf("expected min(3,8)=3 at index 3 (excluding current week's low=1), got %v", low[3])
	}
}

func TestIsTrendBroken(t *testing.T) {
	weekly := []Bar{
		{WeekEnding: dt(2025, 1, 10), Close: 100},
		{WeekEnding: dt(2025, 1, 17), Close: 90},
	}
	ind1 := 95.0
	indicator := []*float64{&ind1, nil}

	broken, found := IsTrendBroken(weekly, indicator, dt(2025, 1, 10))
	if !found || broken {
		t.Fatalf("expected found=true broken=false at week1, got found=%v broken=%v", found, broken)
	}

	_, found = IsTrendBroken(weekly, indicator, dt(2025, 1, 17))
	if found {
		t.Fatalf("expected found=false when indicator absent at matching week")
	}
}

func TestCountCompletedWeeksExcludesEntryWeek(t *testing.T) {
	weekly := []Bar{
		{WeekStart: dt(2025, 1, 6), WeekEnding: dt(2025, 1, 10)},
		{WeekStart: dt(2025, 1, 13), WeekEnding: dt(2025, 1, 17)},
		{WeekStart: dt(2025, 1, 20), WeekEnding: dt(2025, 1, 24)},
	}
	n := CountCompletedWeeks(weekly, dt(2025, 1, 6), dt(2025, 1, 24))
	if n != 2 {
		t.Fatalf("expected 2 completed weeks (entry week excluded), got %d", n)
	}
}

func TestIsWeekEndByDate(t *testing.T) {
	daily := []pricebar.Bar{
		{Date: dt(2025, 1, 6)},
		{Date: dt(2025, 1, 7)},
		{Date: dt(2025, 1, 13)},
	}
	if IsWeekEndByDate(daily, dt(2025, 1, 6)) {
		t.Fatalf("1/6 should not be week end, 1/7 is same ISO week")
	}
	if !IsWeekEndByDate(daily, dt(2025, 1, 7)) {
		t.Fatalf("1/7 should be week end, next bar is a new ISO week")
	}
	if !IsWeekEndByDate(daily, dt(2025, 1, 13)) {
		t.Fatalf("last bar in window should be treated as week end")
	}
	if IsWeekEndByDate(daily, dt(2025, 1, 20)) {
		t.Fatalf("date not in sequence should not be week end")
	}
}
