package pricebar

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tradermonty/earningsgap/internal/logger"
)

// Rate limit policy (§5): baseline one request per 100ms, degraded to
// 300ms after any 429, restored to baseline after the next successful
// response. Failed requests retry with exponential
// backoff (2^n seconds) up to three attempts.
const (
	baselineInterval  = 100 * time.Millisecond
	degradedInterval  = 300 * time.Millisecond
	maxRetryAttempts  = 3
	retryBackoffBase  = 2 * time.Second
)

// HTTPFetcher implements Fetcher against a REST price API. It is the
// wire-level sibling of the teacher's massiveDataProvider: same pattern
// of a pooled *resty.Client, same 429-aware retry loop, generalized from
// option contracts to daily equity bars.
type HTTPFetcher struct {
	client   *resty.Client
	baseURL  string
	apiKey   string

	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time

	group singleflight.Group
}

// NewHTTPFetcher builds an HTTPFetcher pointed at baseURL, authenticating
// with apiKey.
func NewHTTPFetcher(baseURL, apiKey string) *HTTPFetcher {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetTransport(&http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		})

	return &HTTPFetcher{
		client:   client,
		baseURL:  baseURL,
		apiKey:   apiKey,
		interval: baselineInterval,
	}
}

type dailyBarsResponse struct {
	Results []struct {
		Open     float64 `json:"o"`
		High     float64 `json:"h"`
		Low      float64 `json:"l"`
		Close    float64 `json:"c"`
		AdjClose float64 `json:"ac,omitempty"`
		Volume   float64 `json:"v"`
		TimeMS   int64   `json:"t"`
	} `json:"results"`
}

// FetchPrices retrieves daily bars for one ticker over [from, to].
// Concurrent duplicate requests for the same (ticker, from, to) are
// collapsed via singleflight, grounded on the ESI client's semaphore+cache
// pattern for bulk market-data fetches.
func (f *HTTPFetcher) FetchPrices(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	key := fmt.Sprintf("%s|%s|%s", ticker, from.Format("2006-01-02"), to.Format("2006-01-02"))
	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		return f.fetchOnce(ctx, ticker, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Bar), nil
}

// BulkFetch retrieves daily bars for multiple tickers, one request per
// ticker, respecting the same rate-limit policy as FetchPrices.
func (f *HTTPFetcher) BulkFetch(ctx context.Context, tickers []string, from, to time.Time) (map[string][]Bar, error) {
	out := make(map[string][]Bar, len(tickers))
	for _, t := range tickers {
		bars, err := f.FetchPrices(ctx, t, from, to)
		if err != nil {
			return nil, fmt.Errorf("bulk fetch %s: %w", t, err)
		}
		out[t] = bars
	}
	return out, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	f.throttle()

	var body dailyBarsResponse
	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		resp, err := f.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"from":   from.Format("2006-01-02"),
				"to":     to.Format("2006-01-02"),
				"apiKey": f.apiKey,
			}).
			SetResult(&body).
			Get(fmt.Sprintf("%s/v1/bars/%s", f.baseURL, ticker))

		if err == nil && resp.StatusCode() == http.StatusTooManyRequests {
			f.degrade()
			lastErr = fmt.Errorf("rate limited (429)")
		} else if err == nil && resp.IsSuccess() {
			f.restore()
			return parseBars(ticker, body), nil
		} else if err == nil {
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode())
		} else {
			lastErr = err
		}

		logger.Debugf("pricebar: fetch %s attempt %d failed: %v", ticker, attempt+1, lastErr)
		if attempt < maxRetryAttempts-1 {
			time.Sleep(retryBackoffBase * time.Duration(1<<uint(attempt)))
		}
	}
	return nil, fmt.Errorf("fetch prices %s: %w", ticker, lastErr)
}

func parseBars(ticker string, body dailyBarsResponse) []Bar {
	out := make([]Bar, 0, len(body.Results))
	for _, r := range body.Results {
		var adj *float64
		if r.AdjClose > 0 {
			v := r.AdjClose
			adj = &v
		}
		out = append(out, Bar{
			Ticker:   ticker,
			Date:     time.UnixMilli(r.TimeMS).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			AdjClose: adj,
			Volume:   r.Volume,
		})
	}
	return out
}

// throttle sleeps, if needed, to respect the current inter-request interval.
func (f *HTTPFetcher) throttle() {
	f.mu.Lock()
	wait := f.interval - time.Since(f.lastCall)
	f.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
	f.mu.Lock()
	f.lastCall = time.Now()
	f.mu.Unlock()
}

// degrade widens the inter-request interval after a 429.
func (f *HTTPFetcher) degrade() {
	f.mu.Lock()
	f.interval = degradedInterval
	f.mu.Unlock()
}

// restore narrows the inter-request interval back to baseline after a
// successful response.
func (f *HTTPFetcher) restore() {
	f.mu.Lock()
	f.interval = baselineInterval
	f.mu.Unlock()
}
