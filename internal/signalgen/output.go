package signalgen

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteSignalFile writes f as indented JSON under dir, named
// {trade_date}_{strategy}.json, mirroring report.WriteJSON's
// MarshalIndent + os.WriteFile shape.
func WriteSignalFile(f *SignalFile, dir string) (string, error) {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("signalgen: marshal %s/%s: %w", f.TradeDate, f.Strategy, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.json", f.TradeDate, f.Strategy))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("signalgen: write %s: %w", path, err)
	}
	return path, nil
}
