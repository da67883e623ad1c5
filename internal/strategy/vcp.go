// Package strategy detects volatility contraction setups on daily closes.
package strategy

import (
	"VCPHunter/internal/calculator"
	"VCPHunter/internal/model"
)

// Verdict is the outcome of one detection.
type Verdict string

const (
	VerdictMatched             Verdict = "matched"
	VerdictInsufficientHistory Verdict = "insufficient_history"
	VerdictTrendMisaligned     Verdict = "trend_misaligned"
	VerdictTooLoose            Verdict = "too_loose"
	VerdictRiskOutOfBand       Verdict = "risk_out_of_band"
)

// Params holds the detector thresholds.
type Params struct {
	MinHistory        int
	FastMA            int
	MidMA             int
	SlowMA            int
	ContractionWindow int
	MaxTightness      float64
	EntryBuffer       float64 // fraction added above the range high
	StopBuffer        float64 // fraction taken below the stop anchor
	MinRisk           float64
	MaxRisk           float64
}

// DefaultParams returns the standard VCP thresholds.
func DefaultParams() Params {
	return Params{
		MinHistory:        150,
		FastMA:            50,
		MidMA:             150,
		SlowMA:            200,
		ContractionWindow: 10,
		MaxTightness:      0.15,
		EntryBuffer:       0.001,
		StopBuffer:        0.01,
		MinRisk:           0.02,
		MaxRisk:           0.10,
	}
}

// Detect checks trend alignment and volatility contraction on the trailing
// windows ending at the last close. It returns a plan only for VerdictMatched.
func Detect(closes []float64, p Params) (*model.TradePlan, Verdict) {
	if len(closes) < p.MinHistory {
		return nil, VerdictInsufficientHistory
	}
	current := closes[len(closes)-1]

	// An undefined average fails the trend filter.
	sma50, err := calculator.CalculateSMA(closes, p.FastMA)
	if err != nil {
		return nil, VerdictTrendMisaligned
	}
	sma150, err := calculator.CalculateSMA(closes, p.MidMA)
	if err != nil {
		return nil, VerdictTrendMisaligned
	}
	sma200, err := calculator.CalculateSMA(closes, p.SlowMA)
	if err != nil {
		return nil, VerdictTrendMisaligned
	}
	if !(current > sma50 && sma50 > sma150 && sma150 > sma200) {
		return nil, VerdictTrendMisaligned
	}

	high, low, err := calculator.TrailingRange(closes, p.ContractionWindow)
	if err != nil || current <= 0 {
		return nil, VerdictTooLoose
	}
	if (high-low)/current > p.MaxTightness {
		return nil, VerdictTooLoose
	}

	return planTrade(high, low, sma50, p)
}

// planTrade derives the buy stop and protective stop from the contraction range.
func planTrade(high, low, sma50 float64, p Params) (*model.TradePlan, Verdict) {
	buy := calculator.RoundCents(high * (1 + p.EntryBuffer))
	anchor := low
	if sma50 > anchor {
		anchor = sma50
	}
	stop := calculator.RoundCents(anchor * (1 - p.StopBuffer))
	if buy <= 0 || stop <= 0 || stop >= buy {
		return nil, VerdictRiskOutOfBand
	}
	risk := (buy - stop) / buy
	if risk < p.MinRisk || risk > p.MaxRisk {
		return nil, VerdictRiskOutOfBand
	}
	return &model.TradePlan{BuyPrice: buy, StopLoss: stop, RiskPct: risk}, VerdictMatched
}
