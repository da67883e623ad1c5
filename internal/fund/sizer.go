package fund

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Sizer converts risk parameters into a share quantity.
type Sizer struct {
	AccountSize     float64
	RiskPerTrade    float64 // fraction of account risked per trade
	MaxPositionSize float64 // fraction of account allowed in one position
}

// NewSizer creates a Sizer and validates its parameters.
func NewSizer(accountSize, riskPerTrade, maxPositionSize float64) (Sizer, error) {
	s := Sizer{AccountSize: accountSize, RiskPerTrade: riskPerTrade, MaxPositionSize: maxPositionSize}
	return s, s.Validate()
}

// Validate checks that all parameters are usable.
func (s Sizer) Validate() error {
	if s.AccountSize <= 0 {
		return fmt.Errorf("account size must be positive, got %v", s.AccountSize)
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 1 {
		return fmt.Errorf("risk per trade must be in (0, 1], got %v", s.RiskPerTrade)
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > 1 {
		return fmt.Errorf("max position size must be in (0, 1], got %v", s.MaxPositionSize)
	}
	return nil
}

// Quantity returns min(risk-bounded shares, position-capped shares).
// Inputs outside buy > stop >= 0 yield 0.
func (s Sizer) Quantity(buyPrice, stopLoss float64) int {
	if buyPrice <= 0 || stopLoss < 0 || stopLoss >= buyPrice {
		return 0
	}
	account := decimal.NewFromFloat(s.AccountSize)
	buy := decimal.NewFromFloat(buyPrice)
	perShare := buy.Sub(decimal.NewFromFloat(stopLoss))

	riskAmount := account.Mul(decimal.NewFromFloat(s.RiskPerTrade))
	riskShares := riskAmount.Div(perShare).Floor()

	capAmount := account.Mul(decimal.NewFromFloat(s.MaxPositionSize))
	capShares := capAmount.Div(buy).Floor()

	qty := decimal.Min(riskShares, capShares)
	if qty.IsNegative() {
		return 0
	}
	return int(qty.IntPart())
}
