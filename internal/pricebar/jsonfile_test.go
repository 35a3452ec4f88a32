package pricebar

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleBarsJSON = `{
  "AAPL": [
    {"date": "2025-10-01", "open": 99, "high": 101, "low": 98, "close": 100, "volume": 1000},
    {"date": "2025-10-02", "open": 100, "high": 103, "low": 99, "close": 102, "volume": 1100}
  ]
}`

func TestLoadStoreFromFileParsesBars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.json")
	if err := os.WriteFile(path, []byte(sampleBarsJSON), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	store, err := LoadStoreFromFile(path)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	bars := store.Bars("AAPL")
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 100 || bars[1].Close != 102 {
		t.Fatalf("unexpected bar values: %+v", bars)
	}
}
