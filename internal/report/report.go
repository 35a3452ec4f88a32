// Package report writes the backtest run's trade results to JSON and
// CSV, directly adapted from the teacher's report.WriteJSON/WriteCSV
// pair (itself duplicated across internal/report and internal/reports
// in the teacher tree — merged here into one package; see DESIGN.md).
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/simulator"
)

// Result is the full backtest output this package renders.
type Result struct {
	Closed  []candidate.TradeResult `json:"closed"`
	Skipped []simulator.SkippedTrade `json:"skipped"`
}

// WriteJSON writes res as indented JSON to {outdir}/trades.json.
func WriteJSON(res *Result, outdir string) error {
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, "trades.json"), b, 0o644)
}

// WriteCSV writes trades as a flat CSV to {outdir}/trades.csv.
func WriteCSV(trades []candidate.TradeResult, outdir string) error {
	f, err := os.Create(filepath.Join(outdir, "trades.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{
		"ticker", "grade", "report_date", "entry_date", "entry_price",
		"exit_date", "exit_price", "shares", "invested", "pnl", "return_pct",
		"holding_days", "exit_reason",
	}
	if err := w.Write(headers); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			t.Ticker, string(t.Grade), t.ReportDate.Format("2006-01-02"),
			t.EntryDate.Format("2006-01-02"), fmt.Sprintf("%.4f", t.EntryPrice),
			t.ExitDate.Format("2006-01-02"), fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%d", t.Shares), fmt.Sprintf("%.2f", t.Invested),
			fmt.Sprintf("%.2f", t.PnL), fmt.Sprintf("%.4f", t.ReturnPct),
			fmt.Sprintf("%d", t.HoldingDays), string(t.ExitReason),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
