// Command backtest runs the portfolio simulator (C5) over a JSON
// candidate file and a JSON price-bar file, writing a run manifest and
// a JSON/CSV trade report. Mirrors the teacher's cmd/option-replay
// main.go shape: flag-parsed config path, optional --rest toggle.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/google/uuid"

	"github.com/tradermonty/earningsgap/internal/apperrors"
	"github.com/tradermonty/earningsgap/internal/candidate"
	"github.com/tradermonty/earningsgap/internal/config"
	"github.com/tradermonty/earningsgap/internal/logger"
	"github.com/tradermonty/earningsgap/internal/pricebar"
	"github.com/tradermonty/earningsgap/internal/report"
	"github.com/tradermonty/earningsgap/internal/runmanifest"
	"github.com/tradermonty/earningsgap/internal/simulator"
	"github.com/tradermonty/earningsgap/internal/trailingstop"
)

func main() {
	configPath := flag.String("config", "config.json", "path to JSON config")
	candidatesPath := flag.String("candidates", "candidates.json", "path to JSON candidate file")
	pricesPath := flag.String("prices", "prices.json", "path to JSON price-bar file")
	outputDir := flag.String("output", ".", "directory to write trades.json/trades.csv/manifest.json")
	rest := flag.Bool("rest", false, "run as a REST server accepting /run jobs")
	port := flag.String("port", ":8080", "REST server listen address")
	verbosity := flag.Int("v", 1, "log verbosity (0=error .. 3=trace)")
	flag.Parse()

	logger.SetVerbosity(*verbosity)

	if *rest {
		serveREST(*port, *configPath, *candidatesPath, *pricesPath, *outputDir)
		return
	}

	if err := runOnce(*configPath, *candidatesPath, *pricesPath, *outputDir); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		logger.Errorf("backtest: %v", err)
		return appErr.ExitCode()
	}
	logger.Errorf("backtest: %v", err)
	return 1
}

func runOnce(configPath, candidatesPath, pricesPath, outputDir string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	cands, err := candidate.LoadAllCandidates(candidatesPath)
	if err != nil {
		return fmt.Errorf("backtest: load candidates: %w", err)
	}
	store, err := pricebar.LoadStoreFromFile(pricesPath)
	if err != nil {
		return fmt.Errorf("backtest: load prices: %w", err)
	}

	portfolio, err := simulator.NewPortfolio(store, toPortfolioConfig(cfg))
	if err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "invalid portfolio configuration", err)
	}
	result, err := portfolio.Run(cands)
	if err != nil {
		return fmt.Errorf("backtest: run: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create output dir: %w", err)
	}
	if err := report.WriteJSON(&report.Result{Closed: result.Closed, Skipped: result.Skipped}, outputDir); err != nil {
		return fmt.Errorf("backtest: write trades.json: %w", err)
	}
	if err := report.WriteCSV(result.Closed, outputDir); err != nil {
		return fmt.Errorf("backtest: write trades.csv: %w", err)
	}

	if err := writeManifest(cfg, cands, result, outputDir); err != nil {
		return err
	}

	logger.Infof("backtest: run complete — %d closed, %d skipped, wrote %s", len(result.Closed), len(result.Skipped), outputDir)
	return nil
}

func writeManifest(cfg config.Config, cands []candidate.Candidate, result *simulator.RunResult, outputDir string) error {
	runID := uuid.New().String()
	summary := summarize(result.Closed)
	counts := runmanifest.DataCounts{Candidates: len(cands), Trades: len(result.Closed), Skipped: len(result.Skipped)}
	m, err := runmanifest.Build(runID, time.Now(), cfg, counts, summary)
	if err != nil {
		return fmt.Errorf("backtest: build manifest: %w", err)
	}
	if _, err := runmanifest.Write(m, outputDir); err != nil {
		return fmt.Errorf("backtest: write manifest: %w", err)
	}
	return nil
}

func summarize(trades []candidate.TradeResult) map[string]any {
	var totalPnL float64
	wins := 0
	for _, t := range trades {
		totalPnL += t.PnL
		if t.PnL > 0 {
			wins++
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	return map[string]any{
		"total_pnl": totalPnL,
		"win_rate":  winRate,
		"trades":    len(trades),
	}
}

func loadConfig(path string) (config.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, apperrors.Wrap(apperrors.KindConfig, fmt.Sprintf("reading config %s", path), err)
	}
	var cfg config.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return config.Config{}, apperrors.Wrap(apperrors.KindConfig, "invalid config json", err)
	}
	return cfg, nil
}

func toPortfolioConfig(cfg config.Config) simulator.PortfolioConfig {
	return simulator.PortfolioConfig{
		EntryMode:           simulator.EntryMode(cfg.EntryMode),
		StopMode:            simulator.StopMode(cfg.StopMode),
		PositionSize:        cfg.PositionSize,
		StopLossPct:         cfg.StopLossPct,
		SlippagePct:         cfg.SlippagePct,
		MaxHoldingDays:      cfg.MaxHoldingDays,
		MaxPositions:        cfg.MaxPositions,
		TrailingMode:        trailingstop.Mode(cfg.TrailingMode),
		TrailingPeriod:      cfg.TrailingPeriod,
		TrailingTransition:  cfg.TrailingTransitionWeeks,
		TrailingStopEnabled: cfg.TrailingStopEnabled,
		DailyEntryLimit:     cfg.DailyEntryLimit,
	}
}

// restOverride is the form-decoded subset of fields a REST /run caller
// may override on top of the loaded config file, per go-playground/form.
type restOverride struct {
	PositionSize *float64 `form:"position_size"`
	MaxPositions *int     `form:"max_positions"`
}

func serveREST(addr, configPath, candidatesPath, pricesPath, outputDir string) {
	decoder := form.NewDecoder()

	mux := http.NewServeMux()
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := r.ParseForm(); err == nil {
			var override restOverride
			if err := decoder.Decode(&override, r.Form); err == nil {
				if override.PositionSize != nil {
					cfg.PositionSize = *override.PositionSize
				}
				if override.MaxPositions != nil {
					cfg.MaxPositions = *override.MaxPositions
				}
			}
		}
		if err := config.Validate(cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		cands, err := candidate.LoadAllCandidates(candidatesPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		store, err := pricebar.LoadStoreFromFile(pricesPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		portfolio, err := simulator.NewPortfolio(store, toPortfolioConfig(cfg))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		result, err := portfolio.Run(cands)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&report.Result{Closed: result.Closed, Skipped: result.Skipped})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Infof("backtest: starting REST server on %s", addr)
	server := &http.Server{Addr: addr, Handler: mux}
	if err := server.ListenAndServe(); err != nil {
		logger.Criticalf("backtest: REST server stopped: %v", err)
	}
}
