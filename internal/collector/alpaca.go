package collector

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"VCPHunter/internal/model"
)

// AlpacaOptions configures the Alpaca trading and market data clients.
type AlpacaOptions struct {
	APIKey     string
	APISecret  string
	BaseURL    string // trading API, e.g. https://paper-api.alpaca.markets
	Feed       string // iex or sip
	Adjustment string // raw, split, dividend or all
	Timeout    time.Duration
	Proxy      string
}

// AlpacaSource implements AssetSource and BarSource on the Alpaca v2 APIs.
type AlpacaSource struct {
	trading    *alpaca.Client
	market     *marketdata.Client
	feed       string
	adjustment string
}

// NewAlpacaSource creates both Alpaca clients sharing one HTTP client.
func NewAlpacaSource(opts AlpacaOptions) *AlpacaSource {
	transport := &http.Transport{}
	if opts.Proxy != "" {
		if u, err := url.Parse(opts.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	client := &http.Client{Timeout: timeout, Transport: transport}

	feed := opts.Feed
	if feed == "" {
		feed = "iex"
	}
	adjustment := opts.Adjustment
	if adjustment == "" {
		adjustment = "all"
	}
	return &AlpacaSource{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			BaseURL:    opts.BaseURL,
			HTTPClient: client,
		}),
		market: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			Feed:       marketdata.Feed(feed),
			HTTPClient: client,
		}),
		feed:       feed,
		adjustment: adjustment,
	}
}

func (a *AlpacaSource) Name() string { return "alpaca" }

// ListAssets returns active US equities.
func (a *AlpacaSource) ListAssets(ctx context.Context) ([]model.Asset, error) {
	assets, err := await(ctx, func() ([]alpaca.Asset, error) {
		return a.trading.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: "us_equity",
		})
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Asset, 0, len(assets))
	for _, as := range assets {
		out = append(out, model.Asset{
			Symbol:     as.Symbol,
			Exchange:   model.Exchange(strings.ToUpper(string(as.Exchange))),
			Tradable:   as.Tradable,
			Marginable: as.Marginable,
			Name:       as.Name,
		})
	}
	return out, nil
}

// FetchDailyCloses requests daily bars for the whole batch in one call.
func (a *AlpacaSource) FetchDailyCloses(ctx context.Context, symbols []string, start, end time.Time) (map[string]model.PriceSeries, error) {
	bars, err := await(ctx, func() (map[string][]marketdata.Bar, error) {
		return a.market.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame:  marketdata.OneDay,
			Adjustment: marketdata.Adjustment(a.adjustment),
			Start:      start,
			End:        end,
			Feed:       marketdata.Feed(a.feed),
		})
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PriceSeries, len(bars))
	for sym, bs := range bars {
		points := make([]model.PricePoint, len(bs))
		for i, b := range bs {
			points[i] = model.PricePoint{Time: b.Timestamp, Close: b.Close}
		}
		out[sym] = model.PriceSeries{Symbol: sym, Points: points}
	}
	return out, nil
}

// await runs a blocking SDK call and gives up when ctx is done.
// The abandoned call is still bounded by the HTTP client timeout.
func await[T any](ctx context.Context, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
