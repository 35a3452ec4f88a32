package pricebar

import (
	"context"
	"time"
)

// FakeFetcher is a map-backed Fetcher for tests, grounded on the teacher's
// NewLocalFileDataProvider fallback-chain idiom: a canned in-memory
// dataset, no network, deterministic by construction.
type FakeFetcher struct {
	Data map[string][]Bar
}

// NewFakeFetcher builds a FakeFetcher from a pre-populated dataset.
func NewFakeFetcher(data map[string][]Bar) *FakeFetcher {
	return &FakeFetcher{Data: data}
}

// FetchPrices returns the bars for ticker in [from, to], inclusive.
func (f *FakeFetcher) FetchPrices(_ context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	var out []Bar
	for _, b := range f.Data[ticker] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// BulkFetch returns bars for each requested ticker in [from, to].
func (f *FakeFetcher) BulkFetch(ctx context.Context, tickers []string, from, to time.Time) (map[string][]Bar, error) {
	out := make(map[string][]Bar, len(tickers))
	for _, t := range tickers {
		bars, _ := f.FetchPrices(ctx, t, from, to)
		out[t] = bars
	}
	return out, nil
}
