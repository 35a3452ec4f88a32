// Package runmanifest produces the reproducibility record written once
// per backtest run (§6/§12): a UTC timestamp, best-effort git
// identity, the Go runtime version, the full recognized config dict,
// data counts, and summary metrics. A run manifest's config block is
// later compared field-by-field against a live config via
// config.CompareManifestKeys to catch configuration drift.
package runmanifest

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tradermonty/earningsgap/internal/config"
)

// DataCounts tallies how many records of each kind a run touched.
type DataCounts struct {
	Candidates int `json:"candidates"`
	Trades     int `json:"trades"`
	Skipped    int `json:"skipped"`
}

// Manifest is the full reproducibility record.
type Manifest struct {
	RunID          string         `json:"run_id"`
	Timestamp      string         `json:"timestamp"`
	GitSHA         *string        `json:"git_sha"`
	GitDirty       *bool          `json:"git_dirty"`
	RuntimeVersion string         `json:"runtime_version"`
	Config         map[string]any `json:"config"`
	DataCounts     DataCounts     `json:"data_counts"`
	Summary        map[string]any `json:"summary"`
}

// Build assembles a Manifest. now is injected so manifest generation
// stays out of the determinism-sensitive simulation path (§13); git
// identity is best-effort and swallows any lookup error to nil fields,
// matching the teacher's soft-fail-on-missing-external-data style.
func Build(runID string, now time.Time, cfg config.Config, counts DataCounts, summary map[string]any) (*Manifest, error) {
	dict, err := config.ToDict(cfg)
	if err != nil {
		return nil, err
	}
	sha, dirty := gitIdentity()
	return &Manifest{
		RunID:          runID,
		Timestamp:      now.UTC().Format(time.RFC3339),
		GitSHA:         sha,
		GitDirty:       dirty,
		RuntimeVersion: runtime.Version(),
		Config:         dict,
		DataCounts:     counts,
		Summary:        summary,
	}, nil
}

// gitIdentity best-effort shells out to git for the current commit sha
// and dirty-tree flag. Any failure (no git binary, not a repo) yields
// (nil, nil) rather than aborting the run.
func gitIdentity() (*string, *bool) {
	shaOut, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return nil, nil
	}
	sha := strings.TrimSpace(string(shaOut))

	statusOut, err := exec.Command("git", "status", "--porcelain").Output()
	if err != nil {
		return &sha, nil
	}
	dirty := len(strings.TrimSpace(string(statusOut))) > 0
	return &sha, &dirty
}

// Write marshals m as indented JSON to {dir}/manifest.json.
func Write(m *Manifest, dir string) (string, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a previously written manifest for the reproducibility
// comparison of §6.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
