package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"VCPHunter/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
// Configured series are returned whole regardless of the requested window.
// Symbols without a configured series get a generated one when Generate is set.
type MockSource struct {
	Assets    []model.Asset
	AssetsErr error
	Series    map[string][]float64
	Generate  bool
	// FailBatch makes a batch fail when it returns true.
	FailBatch func(symbols []string) bool
	// FailSymbol makes single-symbol fetches fail when it returns true.
	FailSymbol func(symbol string) bool

	mu      sync.Mutex
	batches [][]string
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) ListAssets(ctx context.Context) ([]model.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.AssetsErr != nil {
		return nil, m.AssetsErr
	}
	return m.Assets, nil
}

func (m *MockSource) FetchDailyCloses(ctx context.Context, symbols []string, start, end time.Time) (map[string]model.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), symbols...))
	m.mu.Unlock()

	if m.FailBatch != nil && m.FailBatch(symbols) {
		return nil, fmt.Errorf("mock: batch of %d failed", len(symbols))
	}
	if len(symbols) == 1 && m.FailSymbol != nil && m.FailSymbol(symbols[0]) {
		return nil, fmt.Errorf("mock: %s failed", symbols[0])
	}

	days := int(end.Sub(start).Hours() / 24)
	out := make(map[string]model.PriceSeries, len(symbols))
	for _, sym := range symbols {
		closes, ok := m.Series[sym]
		if !ok {
			if !m.Generate {
				continue
			}
			closes = generateMockCloses(sym, tradingDays(days))
		}
		out[sym] = toSeries(sym, closes, end)
	}
	return out, nil
}

// Batches returns the symbol batches requested so far.
func (m *MockSource) Batches() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.batches...)
}

// tradingDays approximates the number of sessions in a calendar span.
func tradingDays(calendarDays int) int {
	return calendarDays * 5 / 7
}

func toSeries(symbol string, closes []float64, end time.Time) model.PriceSeries {
	points := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = model.PricePoint{
			Time:  end.AddDate(0, 0, -(len(closes) - 1 - i)),
			Close: c,
		}
	}
	return model.PriceSeries{Symbol: symbol, Points: points}
}

// generateMockCloses derives a deterministic drifting series from the symbol name.
func generateMockCloses(symbol string, count int) []float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	seed := h.Sum32()
	base := 10 + float64(seed%190)
	drift := (float64(seed%11) - 4) * 0.0008

	closes := make([]float64, count)
	p := base
	for i := 0; i < count; i++ {
		wiggle := float64((int(seed)+i*7)%9-4) * 0.002
		p *= 1 + drift + wiggle
		closes[i] = p
	}
	return closes
}

// NewDemoSource returns a generating MockSource with a small fixed asset list
// for dry runs without credentials.
func NewDemoSource() *MockSource {
	names := map[string]string{
		"AAPL": "Apple Inc", "MSFT": "Microsoft Corporation", "NVDA": "NVIDIA Corporation",
		"AMZN": "Amazon.com Inc", "META": "Meta Platforms Inc", "AVGO": "Broadcom Inc",
		"LLY": "Eli Lilly and Company", "JPM": "JPMorgan Chase & Co", "XOM": "Exxon Mobil Corporation",
		"SPY": "SPDR S&P 500 ETF Trust",
	}
	order := []string{"AAPL", "MSFT", "NVDA", "AMZN", "META", "AVGO", "LLY", "JPM", "XOM", "SPY"}
	assets := make([]model.Asset, 0, len(order))
	for _, sym := range order {
		ex := model.ExchangeNASDAQ
		switch sym {
		case "LLY", "JPM", "XOM":
			ex = model.ExchangeNYSE
		case "SPY":
			ex = model.ExchangeARCA
		}
		assets = append(assets, model.Asset{Symbol: sym, Exchange: ex, Tradable: true, Marginable: true, Name: names[sym]})
	}
	return &MockSource{Assets: assets, Generate: true}
}
