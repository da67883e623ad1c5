package model

import "time"

// MomentumScore is the trailing-return score of one symbol.
type MomentumScore struct {
	Symbol       string
	Score        float64 // fractional return over the lookback window
	LastClose    float64
	Observations int
}

// TradePlan is the entry/stop pair derived from a detected pattern.
type TradePlan struct {
	BuyPrice float64
	StopLoss float64
	RiskPct  float64
}

// Setup is a detected pattern with its position size.
// Invariant: 0 < StopLoss < BuyPrice and 0.02 <= RiskPct <= 0.10.
type Setup struct {
	Symbol   string
	BuyPrice float64
	StopLoss float64
	RiskPct  float64
	Quantity int     // 0 means detected but unfundable at the configured risk
	Momentum float64 // momentum score the symbol was ranked with
}

// Fundable reports whether the sizer allotted at least one share.
func (s Setup) Fundable() bool { return s.Quantity > 0 }

// ScanReport is the input of the report builder.
type ScanReport struct {
	Date         time.Time
	UniverseSize int
	Ranked       int
	Setups       []Setup
}
