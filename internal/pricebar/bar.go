// Package pricebar implements the date-indexed price store (component C1):
// daily bars per ticker with adjusted-price derivation, plus the rate-limited
// fetcher boundary that feeds it.
package pricebar

import "time"

// Bar is one trading day's OHLCV observation for a ticker.
type Bar struct {
	Ticker   string
	Date     time.Time // UTC midnight, YYYY-MM-DD
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose *float64 // nil when the source had no adjusted close
	Volume   float64
}

// Valid reports whether the bar's invariant (high >= low) holds. Bars
// failing this check are dropped upstream with a log note, never fatal.
func (b Bar) Valid() bool {
	return b.High >= b.Low
}

// AdjFactor returns AdjClose/Close, or 1.0 when AdjClose is absent or <= 0.
func (b Bar) AdjFactor() float64 {
	if b.AdjClose != nil && *b.AdjClose > 0 {
		return *b.AdjClose / b.Close
	}
	return 1.0
}

// AdjustedClose returns the adjusted close: the provided AdjClose when
// present and positive, else the raw close (the documented fallback).
func (b Bar) AdjustedClose() float64 {
	if b.AdjClose != nil && *b.AdjClose > 0 {
		return *b.AdjClose
	}
	return b.Close
}

// AdjustedOpen returns the raw open scaled by AdjFactor.
func (b Bar) AdjustedOpen() float64 { return b.Open * b.AdjFactor() }

// AdjustedHigh returns the raw high scaled by AdjFactor.
func (b Bar) AdjustedHigh() float64 { return b.High * b.AdjFactor() }

// AdjustedLow returns the raw low scaled by AdjFactor.
func (b Bar) AdjustedLow() float64 { return b.Low * b.AdjFactor() }
