// Package momentum ranks symbols by trailing price return.
package momentum

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"VCPHunter/internal/calculator"
	"VCPHunter/internal/collector"
	"VCPHunter/internal/model"
)

// Config holds the ranking policy knobs.
type Config struct {
	LookbackDays    int     // calendar days of history per symbol
	MinObservations int     // trading days required inside the window
	MinPrice        float64 // latest close below this is excluded
	TopN            int
	UniverseCap     int // <= 0 scans the whole universe
	BatchSize       int // request shaping only, never changes results
}

// DefaultConfig returns the standard ranking policy.
func DefaultConfig() Config {
	return Config{
		LookbackDays:    100,
		MinObservations: 60,
		MinPrice:        10.0,
		TopN:            100,
		UniverseCap:     2000,
		BatchSize:       100,
	}
}

// Ranking is the ordered top-N plus what was dropped on the way.
type Ranking struct {
	Top           []model.MomentumScore
	Requested     int // symbols after the universe cap
	Scored        int
	Skips         []model.ItemResult
	Batches       int
	FailedBatches int
}

// Ranker fetches lookback windows in batches and scores each symbol.
type Ranker struct {
	cfg       Config
	collector *collector.Collector
	log       *zap.Logger
}

// NewRanker creates a Ranker. Non-positive knobs fall back to the defaults.
func NewRanker(cfg Config, col *collector.Collector, log *zap.Logger) *Ranker {
	def := DefaultConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = def.LookbackDays
	}
	if cfg.MinObservations <= 0 {
		cfg.MinObservations = def.MinObservations
	}
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{cfg: cfg, collector: col, log: log}
}

// Rank scores the capped universe and returns the top N by descending score.
// A failed batch only removes its own symbols; an empty ranking is not an error.
func (r *Ranker) Rank(ctx context.Context, symbols []string) Ranking {
	universe := symbols
	if r.cfg.UniverseCap > 0 && len(universe) > r.cfg.UniverseCap {
		universe = universe[:r.cfg.UniverseCap]
	}

	rk := Ranking{Requested: len(universe)}
	var scores []model.MomentumScore

	for i := 0; i < len(universe); i += r.cfg.BatchSize {
		end := i + r.cfg.BatchSize
		if end > len(universe) {
			end = len(universe)
		}
		batch := universe[i:end]
		rk.Batches++

		series, err := r.collector.Window(ctx, batch, r.cfg.LookbackDays)
		if err != nil {
			rk.FailedBatches++
			bfe := &model.BatchFetchError{Symbols: batch, Err: err}
			r.log.Warn("momentum batch skipped", zap.Int("batch", rk.Batches), zap.Error(bfe))
			for _, sym := range batch {
				rk.Skips = append(rk.Skips, model.ItemResult{
					Symbol: sym,
					Stage:  model.StageMomentum,
					Reason: model.SkipBatchFetchFailed,
					Detail: err.Error(),
				})
			}
			if ctx.Err() != nil {
				r.log.Warn("momentum ranking interrupted", zap.Error(ctx.Err()))
				break
			}
			continue
		}

		for _, sym := range batch {
			score, reason := Score(series[sym], r.cfg)
			if reason != "" {
				rk.Skips = append(rk.Skips, model.ItemResult{Symbol: sym, Stage: model.StageMomentum, Reason: reason})
				continue
			}
			score.Symbol = sym
			scores = append(scores, score)
		}
	}

	rk.Scored = len(scores)
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) > r.cfg.TopN {
		scores = scores[:r.cfg.TopN]
	}
	rk.Top = scores

	r.log.Info("momentum ranked",
		zap.Int("requested", rk.Requested),
		zap.Int("scored", rk.Scored),
		zap.Int("top", len(rk.Top)),
		zap.Int("failed_batches", rk.FailedBatches),
	)
	return rk
}

// Score rates one lookback series. A non-empty reason means the symbol is excluded.
func Score(series model.PriceSeries, cfg Config) (model.MomentumScore, model.SkipReason) {
	if series.Len() == 0 {
		return model.MomentumScore{}, model.SkipNoData
	}
	last := series.Last().Close
	if last < cfg.MinPrice {
		return model.MomentumScore{}, model.SkipBelowMinPrice
	}
	if series.Len() < cfg.MinObservations {
		return model.MomentumScore{}, model.SkipInsufficientHistory
	}
	ret, err := calculator.TrailingReturn(series.Closes())
	if err != nil {
		return model.MomentumScore{}, model.SkipInvalidData
	}
	return model.MomentumScore{
		Symbol:       series.Symbol,
		Score:        ret,
		LastClose:    last,
		Observations: series.Len(),
	}, ""
}
