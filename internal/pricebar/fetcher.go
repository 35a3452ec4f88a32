package pricebar

import (
	"context"
	"time"
)

// Fetcher is the capability set a price source must expose (§9: a small
// interface rather than an inheritance hierarchy, so a fake implementation
// can stand in for tests without pulling in network code).
type Fetcher interface {
	FetchPrices(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
	BulkFetch(ctx context.Context, tickers []string, from, to time.Time) (map[string][]Bar, error)
}
