// Command signalgen runs the live signal generator (C6) for one trade
// date, producing the execution (ema_p10) and shadow (nwl_p4) signal
// files against the durable state store and the brokerage.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/signalgen"
	"github.com/tradermonty/earningsgap/internal/state"
	"github.com/tradermonty/earningsgap/internal/trailingstop"
)

// fileConfig is the JSON shape of --config, distinct from the backtest
// simulator's config.Config: it carries the live brokerage connection
// and the execution/shadow trailing-stop pair side by side.
type fileConfig struct {
	MinGrade                string  `json:"min_grade"`
	PositionSize            float64 `json:"position_size"`
	StopLossPct             float64 `json:"stop_loss"`
	MaxPositions            int     `json:"max_positions"`
	ExecutionTrailingMode   string  `json:"execution_trailing_mode"`
	ExecutionTrailingPeriod int     `json:"execution_trailing_period"`
	ShadowTrailingMode      string  `json:"shadow_trailing_mode"`
	ShadowTrailingPeriod    int     `json:"shadow_trailing_period"`
	TrailingTransitionWeeks int     `json:"trailing_transition_weeks"`
	BrokerageBaseURL        string  `json:"brokerage_base_url"`
	AllowNonPaperURL        bool    `json:"allow_non_paper_url"`
}

func main() {
	configPath := flag.String("config", "signalgen.json", "path to JSON config")
	candidatesPath := flag.String("candidates", "candidates.json", "path to JSON candidate file")
	pricesPath := flag.String("prices", "prices.json", "path to JSON price-bar file")
	statePath := flag.String("state", "state.db", "path to the sqlite state store")
	tradeDateStr := flag.String("date", "", "trade date, YYYY-MM-DD")
	outputDir := flag.String("output", ".", "directory to write the signal files")
	force := flag.Bool("force", false, "proceed despite a reconciliation mismatch")
	dryRun := flag.Bool("dry-run", false, "skip shadow-book side effects")
	verbosity := flag.Int("v", 1, "log verbosity (0=error .. 3=trace)")
	flag.Parse()

	logger.SetVerbosity(*verbosity)

	if err := run(*configPath, *candidatesPath, *pricesPath, *statePath, *tradeDateStr, *outputDir, *force, *dryRun); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		logger.Errorf("signalgen: %v", err)
		return appErr.ExitCode()
	}
	logger.Errorf("signalgen: %v", err)
	return 1
}

func run(configPath, candidatesPath, pricesPath, statePath, tradeDateStr, outputDir string, force, dryRun bool) error {
	if tradeDateStr == "" {
		return apperrors.ErrConfig("--date is required")
	}
	tradeDate, err := time.Parse("2006-01-02", tradeDateStr)
	if err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "invalid --date", err)
	}

	fc, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}

	store, err := state.Open(statePath)
	if err != nil {
		return fmt.Errorf("signalgen: open state store: %w", err)
	}
	defer store.Close()

	priceStore, err := pricebar.LoadStoreFromFile(pricesPath)
	if err != nil {
		return fmt.Errorf("signalgen: load prices: %w", err)
	}

	brk, err := broker.NewAlpacaBroker(fc.BrokerageBaseURL, os.Getenv("BROKER_API_KEY"), os.Getenv("BROKER_SECRET_KEY"), fc.AllowNonPaperURL)
	if err != nil {
		return err
	}

	source := candidate.NewJSONFileSource(candidatesPath)
	cands, err := source.Candidates(context.Background(), tradeDate)
	if err != nil {
		return fmt.Errorf("signalgen: load candidates: %w", err)
	}

	cfg := signalgen.Config{
		MinGrade: fc.MinGrade, PositionSize: fc.PositionSize, StopLossPct: fc.StopLossPct,
		MaxPositions: fc.MaxPositions,
		Execution: signalgen.TrailingStopConfig{
			Mode: trailingstop.Mode(fc.ExecutionTrailingMode), Period: fc.ExecutionTrailingPeriod,
			TransitionWeeks: fc.TrailingTransitionWeeks,
		},
		Shadow: signalgen.TrailingStopConfig{
			Mode: trailingstop.Mode(fc.ShadowTrailingMode), Period: fc.ShadowTrailingPeriod,
			TransitionWeeks: fc.TrailingTransitionWeeks,
		},
		Force: force, DryRun: dryRun, GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		OutputDir: outputDir,
	}

	runID := uuid.New().String()
	execSignals, shadowSignals, err := signalgen.GenerateSignals(context.Background(), tradeDate, cands, store, priceStore, brk, cfg, runID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("signalgen: create output dir: %w", err)
	}
	execPath, err := signalgen.WriteSignalFile(execSignals, outputDir)
	if err != nil {
		return fmt.Errorf("signalgen: write execution signals: %w", err)
	}
	shadowPath, err := signalgen.WriteSignalFile(shadowSignals, outputDir)
	if err != nil {
		return fmt.Errorf("signalgen: write shadow signals: %w", err)
	}

	logger.Infof("signalgen: wrote %s and %s", execPath, shadowPath)
	return nil
}

func loadFileConfig(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, apperrors.Wrap(apperrors.KindConfig, fmt.Sprintf("reading config %s", path), err)
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fileConfig{}, apperrors.Wrap(apperrors.KindConfig, "invalid config json", err)
	}
	return fc, nil
}
