// Command executor runs the live order executor (C8) against one
// execution-strategy signal file, driving the place/poll pipeline
// through the brokerage and the durable state store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/broker"
	"github.com/tradermonty/earningsgap/internal/executor"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/signalgen"
	"github.com/tradermonty/earningsgap/internal/state"
)

func main() {
	signalsPath := flag.String("signals", "", "path to the execution SignalFile (required)")
	statePath := flag.String("state", "state.db", "path to the sqlite state store")
	brokerageBaseURL := flag.String("brokerage-url", "", "brokerage REST base URL (required)")
	allowNonPaper := flag.Bool("allow-non-paper-url", false, "permit a non-paper brokerage base URL")
	mode := flag.String("mode", "day", "entry time-in-force regime: day or opg")
	phase := flag.String("phase", "all", "invocation phase: place, poll, or all")
	maxPositions := flag.Int("max-positions", 10, "maximum concurrently open positions")
	entryCutoffMinutes := flag.Int("entry-cutoff-minutes", 30, "minutes after open entries are still allowed, day mode")
	minBuyingPower := flag.Float64("min-buying-power", 0, "floor below which no new entries are placed")
	maxDailyTradeOrders := flag.Int("max-daily-trade-orders", 50, "daily cap on entry+exit orders")
	maxDailyStopOrders := flag.Int("max-daily-stop-orders", 50, "daily cap on protective stop orders")
	sellPollTimeout := flag.Duration("sell-poll-timeout", 60*time.Second, "phase B poll budget")
	sellPollInterval := flag.Duration("sell-poll-interval", 5*time.Second, "phase B poll interval")
	buyPollTimeout := flag.Duration("buy-poll-timeout", 60*time.Second, "phase E poll budget")
	buyPollInterval := flag.Duration("buy-poll-interval", 5*time.Second, "phase E poll interval")
	verbosity := flag.Int("v", 1, "log verbosity (0=error .. 3=trace)")
	flag.Parse()

	logger.SetVerbosity(*verbosity)

	cfg := executor.Config{
		Mode: executor.Mode(*mode), MaxPositions: *maxPositions, EntryCutoffMinutes: *entryCutoffMinutes,
		MinBuyingPower: *minBuyingPower, MaxDailyTradeOrders: *maxDailyTradeOrders, MaxDailyStopOrders: *maxDailyStopOrders,
		SellPollTimeout: *sellPollTimeout, SellPollInterval: *sellPollInterval,
		BuyPollTimeout: *buyPollTimeout, BuyPollInterval: *buyPollInterval,
		Now: time.Now,
	}

	if err := run(*signalsPath, *statePath, *brokerageBaseURL, *allowNonPaper, executor.InvocationPhase(*phase), cfg); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		logger.Errorf("executor: %v", err)
		return appErr.ExitCode()
	}
	logger.Errorf("executor: %v", err)
	return 1
}

func run(signalsPath, statePath, brokerageBaseURL string, allowNonPaper bool, phase executor.InvocationPhase, cfg executor.Config) error {
	if signalsPath == "" {
		return apperrors.ErrConfig("--signals is required")
	}
	if brokerageBaseURL == "" {
		return apperrors.ErrConfig("--brokerage-url is required")
	}

	signals, err := loadSignalFile(signalsPath)
	if err != nil {
		return err
	}

	store, err := state.Open(statePath)
	if err != nil {
		return fmt.Errorf("executor: open state store: %w", err)
	}
	defer store.Close()

	brk, err := broker.NewAlpacaBroker(brokerageBaseURL, os.Getenv("BROKER_API_KEY"), os.Getenv("BROKER_SECRET_KEY"), allowNonPaper)
	if err != nil {
		return err
	}

	exec := executor.New(brk, store, cfg)
	summary, err := exec.Run(context.Background(), signals, phase)
	if err != nil {
		return err
	}

	logger.Infof("executor: run complete — %d exits, %d entries, %d skipped",
		summary.ExitsExecuted, summary.EntriesExecuted, summary.Skipped)
	return nil
}

func loadSignalFile(path string) (*signalgen.SignalFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, fmt.Sprintf("reading signal file %s", path), err)
	}
	var signals signalgen.SignalFile
	if err := json.Unmarshal(raw, &signals); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConfig, "invalid signal file json", err)
	}
	return &signals, nil
}
