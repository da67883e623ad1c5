package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"VCPHunter/internal/model"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooFetcher implements BarSource using the Yahoo Finance chart API.
// The API serves one symbol per request, so a batch becomes sequential calls.
type YahooFetcher struct {
	BaseURL     string
	Client      *http.Client
	CallTimeout time.Duration
}

// NewYahooFetcher creates a new Yahoo Finance fetcher with optional proxy support.
func NewYahooFetcher(proxyURL string, timeout time.Duration) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &YahooFetcher{
		BaseURL:     yahooChartURL,
		Client:      &http.Client{Timeout: timeout, Transport: transport},
		CallTimeout: timeout,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

// BoundsEachCall reports that every symbol request carries its own deadline.
func (f *YahooFetcher) BoundsEachCall() bool { return true }

// FetchDailyCloses fetches each symbol in turn. Symbols that fail are left out;
// the batch fails only when every symbol failed. A cancelled context stops the
// loop and keeps what was already fetched.
func (f *YahooFetcher) FetchDailyCloses(ctx context.Context, symbols []string, start, end time.Time) (map[string]model.PriceSeries, error) {
	out := make(map[string]model.PriceSeries, len(symbols))
	var errs []error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			if len(out) > 0 {
				return out, nil
			}
			return nil, err
		}
		series, err := f.fetchChart(ctx, sym, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sym, err))
			continue
		}
		out[sym] = series
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, start, end time.Time) (model.PriceSeries, error) {
	u := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		strings.TrimRight(f.BaseURL, "/"), url.PathEscape(symbol), start.Unix(), end.Unix())

	if f.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.CallTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.PriceSeries{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.PriceSeries{}, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.PriceSeries{}, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return parseChart(symbol, body)
}

// parseChart extracts adjusted closes (raw closes as fallback), skipping null bars.
func parseChart(symbol string, body []byte) (model.PriceSeries, error) {
	if !gjson.ValidBytes(body) {
		return model.PriceSeries{}, errors.New("yahoo: invalid json")
	}
	if desc := gjson.GetBytes(body, "chart.error.description"); desc.Exists() {
		return model.PriceSeries{}, fmt.Errorf("yahoo api error: %s", desc.String())
	}
	result := gjson.GetBytes(body, "chart.result.0")
	if !result.Exists() {
		return model.PriceSeries{}, errors.New("yahoo: no data returned")
	}

	timestamps := result.Get("timestamp").Array()
	closes := result.Get("indicators.adjclose.0.adjclose").Array()
	if len(closes) == 0 {
		closes = result.Get("indicators.quote.0.close").Array()
	}

	points := make([]model.PricePoint, 0, len(timestamps))
	for i, ts := range timestamps {
		if i >= len(closes) || closes[i].Type != gjson.Number {
			continue // null bars (holidays, halts)
		}
		c := closes[i].Float()
		if c <= 0 {
			continue
		}
		points = append(points, model.PricePoint{Time: time.Unix(ts.Int(), 0).UTC(), Close: c})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return model.PriceSeries{Symbol: symbol, Points: points}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
