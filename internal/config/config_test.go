package config

import (
	"errors"
	"testing"

	"github.com/tradermonty/earningsgap/internal/apperrors"
)

func validConfig() Config {
	return Config{
		PositionSize:            1000,
		StopLossPct:             10,
		SlippagePct:             0.5,
		MaxHoldingDays:          30,
		StopMode:                "intraday",
		EntryMode:               "next_day_open",
		MaxPositions:            5,
		TrailingStopEnabled:     true,
		TrailingTransitionWeeks: 2,
		TrailingMode:            "weekly_ema",
		TrailingPeriod:          10,
		BrokerageBaseURL:        "https://paper-api.example.com",
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config to pass, got %v", err)
	}
}

func TestValidateRejectsBothExitsDisabled(t *testing.T) {
	c := validConfig()
	c.MaxHoldingDays = 0
	c.TrailingStopEnabled = false
	err := Validate(c)
	if err == nil {
		t.Fatalf("expected error")
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.ExitCode() != 2 {
		t.Fatalf("expected config error exit code 2, got %v", err)
	}
}

func TestValidateRejectsNonPaperURLWithoutOptIn(t *testing.T) {
	c := validConfig()
	c.BrokerageBaseURL = "https://api.live-broker.example.com"
	if err := Validate(c); err == nil {
		t.Fatalf("expected error for non-paper URL without opt-in")
	}
}

func TestValidateAllowsNonPaperURLWithOptIn(t *testing.T) {
	c := validConfig()
	c.BrokerageBaseURL = "https://api.live-broker.example.com"
	c.AllowNonPaperURL = true
	if err := Validate(c); err != nil {
		t.Fatalf("expected non-paper URL with opt-in to pass, got %v", err)
	}
}

func TestToDictRoundTripsRecognizedKeys(t *testing.T) {
	dict, err := ToDict(validConfig())
	if err != nil {
		t.Fatalf("to dict: %v", err)
	}
	for _, k := range RecognizedManifestKeys {
		if _, ok := dict[k]; !ok {
			t.Fatalf("expected dict to contain recognized key %q", k)
		}
	}
	if dict["stop_mode"] != "intraday" {
		t.Fatalf("expected stop_mode intraday, got %v", dict["stop_mode"])
	}
}

func TestCompareManifestKeysDetectsMismatch(t *testing.T) {
	live := map[string]any{
		"position_size": 1000, "stop_loss": 10, "slippage": 0.5,
		"max_holding": 30, "stop_mode": "intraday", "entry_mode": "next_day_open",
		"max_positions": 5, "trailing_transition_weeks": 2,
	}
	manifest := map[string]any{}
	for k, v := range live {
		manifest[k] = v
	}
	manifest["stop_mode"] = "close"

	mismatched := CompareManifestKeys(live, manifest)
	if len(mismatched) != 1 || mismatched[0] != "stop_mode" {
		t.Fatalf("expected single stop_mode mismatch, got %v", mismatched)
	}
}
