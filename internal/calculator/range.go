package calculator

import (
	"errors"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// TrailingRange returns the highest and lowest value over the trailing window.
// A window longer than the input covers the whole input.
func TrailingRange(values []float64, window int) (high, low float64, err error) {
	if window <= 0 {
		return 0, 0, errors.New("window must be positive")
	}
	if len(values) == 0 {
		return 0, 0, errors.New("no values provided")
	}
	n := len(values)
	start := n - window
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if values[i] > high {
			high = values[i]
		}
		if values[i] < low {
			low = values[i]
		}
	}
	return high, low, nil
}

// TrailingReturn is (last - first) / first over the whole input.
func TrailingReturn(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, errors.New("need at least two closes")
	}
	first := closes[0]
	if first <= 0 || math.IsNaN(first) {
		return 0, errors.New("first close must be positive")
	}
	return (closes[len(closes)-1] - first) / first, nil
}

// RoundCents rounds the exact binary value to two decimals, ties to even.
// 2.675 is stored as 2.67499... and rounds down.
func RoundCents(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	d, err := decimal.NewFromString(strconv.FormatFloat(x, 'f', 64, 64))
	if err != nil {
		return x
	}
	return d.RoundBank(2).InexactFloat64()
}
