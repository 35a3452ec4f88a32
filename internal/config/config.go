// Package config defines the live/backtest configuration schema and its
// validation, including the reproducibility check against a run
// manifest's config block.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tradermonty/earningsgap/internal/apperrors"
)

// Config is the recognized configuration surface of the backtest runner.
// cmd/signalgen reads its own config file and cmd/executor takes flags;
// neither loads this struct.
type Config struct {
	PositionSize            float64 `json:"position_size" validate:"gt=0"`
	StopLossPct             float64 `json:"stop_loss" validate:"gt=0"`
	SlippagePct             float64 `json:"slippage" validate:"gte=0"`
	MaxHoldingDays          int     `json:"max_holding" validate:"gte=0"`
	StopMode                string  `json:"stop_mode" validate:"oneof=intraday close skip_entry_day close_next_open"`
	EntryMode               string  `json:"entry_mode" validate:"oneof=next_day_open report_open"`
	MaxPositions            int     `json:"max_positions" validate:"gte=1"`
	TrailingStopEnabled     bool    `json:"trailing_stop_enabled" validate:"-"`
	TrailingTransitionWeeks int     `json:"trailing_transition_weeks" validate:"gte=0"`
	TrailingMode            string  `json:"trailing_mode" validate:"omitempty,oneof=weekly_ema weekly_nweek_low"`
	TrailingPeriod          int     `json:"trailing_period" validate:"omitempty,gt=0"`
	BrokerageBaseURL        string  `json:"brokerage_base_url" validate:"required,paperurl"`
	AllowNonPaperURL        bool    `json:"allow_non_paper_url" validate:"-"`
	DailyEntryLimit         int     `json:"daily_entry_limit" validate:"gte=0"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("paperurl", paperURLRule)
}

// paperURLRule only checks that brokerage_base_url is non-empty.
// validator only sees the field value, so the paper-endpoint check and
// its AllowNonPaperURL opt-in happen in Validate after the struct-level
// pass.
func paperURLRule(fl validator.FieldLevel) bool {
	return fl.Field().String() != ""
}

// Validate checks c against its struct tags, then the two cross-field
// invariants the tag layer cannot express on its own: max-holding and
// trailing-stop cannot both be disabled, and a non-paper brokerage URL
// requires an explicit opt-in. Returns a Configuration error (exit code
// 2) on any violation.
func Validate(c Config) error {
	if err := validate.Struct(c); err != nil {
		return apperrors.Wrap(apperrors.KindConfig, "invalid configuration", err)
	}
	if c.MaxHoldingDays <= 0 && !c.TrailingStopEnabled {
		return apperrors.ErrConfig("max_holding and trailing_stop_enabled cannot both be disabled")
	}
	if !strings.Contains(strings.ToLower(c.BrokerageBaseURL), "paper") && !c.AllowNonPaperURL {
		return apperrors.ErrConfig("brokerage_base_url does not look like a paper endpoint; set allow_non_paper_url to opt in")
	}
	return nil
}

// ToDict round-trips c through its json tags into a plain map, the
// form both the run manifest's config block and CompareManifestKeys
// expect.
func ToDict(c Config) (map[string]any, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: marshal to dict: %w", err)
	}
	var dict map[string]any
	if err := json.Unmarshal(b, &dict); err != nil {
		return nil, fmt.Errorf("config: unmarshal to dict: %w", err)
	}
	return dict, nil
}

// RecognizedManifestKeys are the config fields compared field-by-field
// between a live configuration and a run manifest's config block for
// reproducibility. Any mismatch aborts startup.
var RecognizedManifestKeys = []string{
	"position_size", "stop_loss", "slippage", "max_holding",
	"stop_mode", "entry_mode", "max_positions", "trailing_transition_weeks",
}

// CompareManifestKeys compares live and manifest config dicts on
// RecognizedManifestKeys only, returning the list of mismatched keys
// (empty means they match).
func CompareManifestKeys(live, manifest map[string]any) []string {
	var mismatched []string
	for _, k := range RecognizedManifestKeys {
		lv, lok := live[k]
		mv, mok := manifest[k]
		if !lok || !mok {
			mismatched = append(mismatched, k)
			continue
		}
		if fmt.Sprintf("%v", lv) != fmt.Sprintf("%v", mv) {
			mismatched = append(mismatched, k)
		}
	}
	return mismatched
}
