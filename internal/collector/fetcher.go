package collector

import (
	"context"
	"time"

	"VCPHunter/internal/model"
)

// AssetSource lists the active US equity assets.
type AssetSource interface {
	ListAssets(ctx context.Context) ([]model.Asset, error)
	Name() string
}

// BarSource returns daily close series for a batch of symbols.
// Symbols without data are absent from the map or carry an empty series.
type BarSource interface {
	FetchDailyCloses(ctx context.Context, symbols []string, start, end time.Time) (map[string]model.PriceSeries, error)
	Name() string
}
