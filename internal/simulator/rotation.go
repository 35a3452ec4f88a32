package simulator

// PositionSnapshot is the minimal per-ticker state WeakestOpen needs,
// shared between the backtest portfolio (C5) and the live signal
// generator (C6) so both apply the identical rotation policy.
type PositionSnapshot struct {
	Ticker     string
	EntryPrice float64
	Shares     int
	Score      *float64
}

// WeakestOpen scans positions in order for the one with the
// most-negative unrealized P&L, using currentPrice to mark each
// position; a ticker with no available current price is ineligible.
// Returns found=false if no position could be priced, or if the
// weakest priced position isn't actually underwater.
func WeakestOpen(positions []PositionSnapshot, currentPrice func(ticker string) (float64, bool)) (PositionSnapshot, bool) {
	var weakest PositionSnapshot
	var weakestUnrealized float64
	found := false

	for _, pos := range positions {
		price, ok := currentPrice(pos.Ticker)
		if !ok {
			continue
		}
		unrealized := (price - pos.EntryPrice) * float64(pos.Shares)
		if !found || unrealized < weakestUnrealized {
			weakestUnrealized = unrealized
			weakest = pos
			found = true
		}
	}

	if !found || weakestUnrealized >= 0 {
		return PositionSnapshot{}, false
	}
	return weakest, true
}

// OutranksWeakest reports whether incomingScore strictly exceeds the
// weakest open position's score, the second half of the rotation rule
// (WeakestOpen finds the candidate to replace; this decides whether the
// incoming candidate is actually strong enough to replace it).
func OutranksWeakest(incomingScore *float64, weakest PositionSnapshot) bool {
	if incomingScore == nil {
		return false
	}
	if weakest.Score != nil && *incomingScore <= *weakest.Score {
		return false
	}
	return true
}
