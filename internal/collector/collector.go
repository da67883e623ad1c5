package collector

import (
	"context"
	"fmt"
	"time"

	"VCPHunter/internal/model"
)

// DefaultCallTimeout bounds a single upstream history call.
const DefaultCallTimeout = 10 * time.Second

// perCallBounded is implemented by sources that split a batch into one
// upstream call per symbol and time-bound each call themselves.
type perCallBounded interface {
	BoundsEachCall() bool
}

// Collector wraps a BarSource with date windows and a per-call timeout.
// Sources that bound each symbol call get the caller's context unchanged.
type Collector struct {
	Bars    BarSource
	Timeout time.Duration
	Now     func() time.Time
}

// NewCollector creates a new Collector.
func NewCollector(bars BarSource, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Collector{Bars: bars, Timeout: timeout, Now: time.Now}
}

// Window fetches the trailing days calendar days of closes for symbols.
func (c *Collector) Window(ctx context.Context, symbols []string, days int) (map[string]model.PriceSeries, error) {
	if len(symbols) == 0 {
		return map[string]model.PriceSeries{}, nil
	}
	end := c.Now()
	start := end.AddDate(0, 0, -days)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if pc, ok := c.Bars.(perCallBounded); !ok || !pc.BoundsEachCall() {
		callCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	series, err := c.Bars.FetchDailyCloses(callCtx, symbols, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s daily closes: %w", c.Bars.Name(), err)
	}
	if series == nil {
		series = map[string]model.PriceSeries{}
	}
	return series, nil
}

// History fetches the trailing days of closes for one symbol.
// A symbol the source knows nothing about yields an empty series.
func (c *Collector) History(ctx context.Context, symbol string, days int) (model.PriceSeries, error) {
	series, err := c.Window(ctx, []string{symbol}, days)
	if err != nil {
		return model.PriceSeries{Symbol: symbol}, err
	}
	s, ok := series[symbol]
	if !ok {
		return model.PriceSeries{Symbol: symbol}, nil
	}
	return s, nil
}
