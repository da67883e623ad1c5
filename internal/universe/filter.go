// Package universe reduces the raw asset feed to a clean tradable equity list.
package universe

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"VCPHunter/internal/collector"
	"VCPHunter/internal/model"
)

// DefaultExchanges are the listing venues accepted when none are configured.
var DefaultExchanges = []string{string(model.ExchangeNYSE), string(model.ExchangeNASDAQ)}

// DefaultBlacklist flags funds, ETFs and trusts by display name.
var DefaultBlacklist = []string{"ETF", "FUND", "TRUST", "ETN", "SPDR", "ISHARES"}

// Config controls which assets survive the filter.
type Config struct {
	Exchanges []string
	Blacklist []string
}

// Result is the filtered universe plus the reasons for every rejection.
type Result struct {
	Symbols    []string
	Accepted   int
	Rejected   int
	Rejections []model.ItemResult
}

// Filter applies exchange, tradability and name-keyword rules.
type Filter struct {
	exchanges map[model.Exchange]struct{}
	blacklist []string
	log       *zap.Logger
}

// NewFilter creates a Filter. Empty lists fall back to the defaults.
func NewFilter(cfg Config, log *zap.Logger) *Filter {
	if log == nil {
		log = zap.NewNop()
	}
	exchanges := cfg.Exchanges
	if len(exchanges) == 0 {
		exchanges = DefaultExchanges
	}
	blacklist := cfg.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}

	f := &Filter{exchanges: make(map[model.Exchange]struct{}, len(exchanges)), log: log}
	for _, e := range exchanges {
		f.exchanges[model.Exchange(strings.ToUpper(strings.TrimSpace(e)))] = struct{}{}
	}
	for _, kw := range blacklist {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw != "" {
			f.blacklist = append(f.blacklist, kw)
		}
	}
	return f
}

// Select queries the asset source once and filters the result.
// A source failure aborts with a DataSourceError and no partial universe.
func (f *Filter) Select(ctx context.Context, src collector.AssetSource) (Result, error) {
	assets, err := src.ListAssets(ctx)
	if err != nil {
		return Result{}, &model.DataSourceError{Source: src.Name(), Err: err}
	}
	res := f.Apply(assets)
	f.log.Info("universe filtered",
		zap.String("source", src.Name()),
		zap.Int("total", len(assets)),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
	)
	return res, nil
}

// Apply filters assets, keeping their relative order.
func (f *Filter) Apply(assets []model.Asset) Result {
	res := Result{Symbols: make([]string, 0, len(assets))}
	for _, a := range assets {
		if reason, ok := f.check(a); !ok {
			res.Rejected++
			res.Rejections = append(res.Rejections, model.ItemResult{
				Symbol: a.Symbol,
				Stage:  model.StageUniverse,
				Reason: reason,
			})
			continue
		}
		res.Accepted++
		res.Symbols = append(res.Symbols, a.Symbol)
	}
	return res
}

func (f *Filter) check(a model.Asset) (model.SkipReason, bool) {
	if _, ok := f.exchanges[model.Exchange(strings.ToUpper(string(a.Exchange)))]; !ok {
		return model.SkipExchange, false
	}
	if !a.Tradable {
		return model.SkipNotTradable, false
	}
	if !a.Marginable {
		return model.SkipNotMarginable, false
	}
	if f.Blacklisted(a.Name) {
		return model.SkipBlacklisted, false
	}
	return "", true
}

// Blacklisted reports whether name contains a blacklisted keyword, ignoring case.
// An empty name never matches.
func (f *Filter) Blacklisted(name string) bool {
	if name == "" {
		return false
	}
	upper := strings.ToUpper(name)
	for _, kw := range f.blacklist {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
