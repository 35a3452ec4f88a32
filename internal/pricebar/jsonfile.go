package pricebar

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

type jsonBar struct {
	Date     string   `json:"date"`
	Open     float64  `json:"open"`
	High     float64  `json:"high"`
	Low      float64  `json:"low"`
	Close    float64  `json:"close"`
	AdjClose *float64 `json:"adj_close,omitempty"`
	Volume   float64  `json:"volume"`
}

// LoadStoreFromFile reads a ticker -> []jsonBar file (the offline,
// file-backed price source the backtest CLI drives) and builds a Store,
// the price-data analogue of candidate.JSONFileSource/LoadAllCandidates.
func LoadStoreFromFile(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricebar: read %s: %w", path, err)
	}
	var byTicker map[string][]jsonBar
	if err := json.Unmarshal(raw, &byTicker); err != nil {
		return nil, fmt.Errorf("pricebar: parse %s: %w", path, err)
	}

	bars := make(map[string][]Bar, len(byTicker))
	for ticker, rows := range byTicker {
		converted := make([]Bar, 0, len(rows))
		for _, r := range rows {
			d, err := time.Parse("2006-01-02", r.Date)
			if err != nil {
				return nil, fmt.Errorf("pricebar: %s: bad date %q: %w", ticker, r.Date, err)
			}
			converted = append(converted, Bar{
				Ticker: ticker, Date: d, Open: r.Open, High: r.High, Low: r.Low,
				Close: r.Close, AdjClose: r.AdjClose, Volume: r.Volume,
			})
		}
		bars[ticker] = converted
	}
	return NewStore(bars), nil
}
