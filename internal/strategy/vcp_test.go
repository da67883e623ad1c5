package strategy

import (
	"math"
	"math/rand"
	"testing"
)

// uptrend builds 240 closes rising 0.2 per day from 50 followed by tail.
func uptrend(tail ...float64) []float64 {
	closes := make([]float64, 0, 240+len(tail))
	for i := 0; i < 240; i++ {
		closes = append(closes, 50+0.2*float64(i))
	}
	return append(closes, tail...)
}

func constant(n int, v float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = v
	}
	return closes
}

func TestDetect_Match(t *testing.T) {
	closes := uptrend(96, 97, 98, 99, 100, 96, 97, 98, 99, 100)
	plan, verdict := Detect(closes, DefaultParams())
	if verdict != VerdictMatched {
		t.Fatalf("expected match, got %s", verdict)
	}
	if math.Abs(plan.BuyPrice-100.10) > 1e-9 {
		t.Errorf("expected buy 100.10, got %v", plan.BuyPrice)
	}
	// max(low10=96, sma50=94.72) * 0.99
	if math.Abs(plan.StopLoss-95.04) > 1e-9 {
		t.Errorf("expected stop 95.04, got %v", plan.StopLoss)
	}
	wantRisk := (100.10 - 95.04) / 100.10
	if math.Abs(plan.RiskPct-wantRisk) > 1e-9 {
		t.Errorf("expected risk %.5f, got %.5f", wantRisk, plan.RiskPct)
	}
	if !(plan.StopLoss < plan.BuyPrice) {
		t.Error("stop must be below buy")
	}
}

func TestDetect_InsufficientHistory(t *testing.T) {
	for _, n := range []int{0, 1, 60, 149} {
		closes := uptrend()[:n]
		if plan, verdict := Detect(closes, DefaultParams()); plan != nil || verdict != VerdictInsufficientHistory {
			t.Errorf("n=%d: expected insufficient history, got %s", n, verdict)
		}
	}
}

func TestDetect_ConstantSeries(t *testing.T) {
	plan, verdict := Detect(constant(200, 10), DefaultParams())
	if plan != nil || verdict != VerdictTrendMisaligned {
		t.Errorf("expected trend misaligned for flat series, got %s", verdict)
	}
}

func TestDetect_NoSlowAverage(t *testing.T) {
	// 150..199 closes pass the history gate but SMA200 is undefined.
	closes := uptrend(96, 97, 98, 99, 100)[70:]
	if len(closes) < 150 || len(closes) >= 200 {
		t.Fatalf("bad fixture length %d", len(closes))
	}
	if _, verdict := Detect(closes, DefaultParams()); verdict != VerdictTrendMisaligned {
		t.Errorf("expected trend misaligned, got %s", verdict)
	}
}

func TestDetect_Downtrend(t *testing.T) {
	closes := make([]float64, 250)
	for i := range closes {
		closes[i] = 200 - 0.5*float64(i)
	}
	if _, verdict := Detect(closes, DefaultParams()); verdict != VerdictTrendMisaligned {
		t.Errorf("expected trend misaligned, got %s", verdict)
	}
}

func TestDetect_TooLoose(t *testing.T) {
	closes := uptrend(84, 97, 98, 99, 100, 96, 97, 98, 99, 100)
	if _, verdict := Detect(closes, DefaultParams()); verdict != VerdictTooLoose {
		t.Errorf("expected too loose, got %s", verdict)
	}
}

func TestDetect_RiskTooTight(t *testing.T) {
	closes := uptrend(99.6, 100, 99.6, 100, 99.6, 100, 99.6, 100, 99.6, 100)
	if _, verdict := Detect(closes, DefaultParams()); verdict != VerdictRiskOutOfBand {
		t.Errorf("expected risk out of band, got %s", verdict)
	}
}

func TestPlanTrade_Boundaries(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name              string
		high, low, sma50  float64
		wantMatch         bool
		wantBuy, wantStop float64
	}{
		{"sma50 anchors stop", 100, 90, 95, true, 100.10, 94.05},
		{"low anchors stop", 100, 96, 80, true, 100.10, 95.04},
		{"too loose", 100, 88, 80, false, 0, 0},
		{"too tight", 100, 99.9, 80, false, 0, 0},
	}
	for _, tt := range tests {
		plan, verdict := planTrade(tt.high, tt.low, tt.sma50, p)
		if (verdict == VerdictMatched) != tt.wantMatch {
			t.Errorf("%s: unexpected verdict %s", tt.name, verdict)
			continue
		}
		if !tt.wantMatch {
			if plan != nil {
				t.Errorf("%s: rejected plan must be nil", tt.name)
			}
			continue
		}
		if math.Abs(plan.BuyPrice-tt.wantBuy) > 1e-9 || math.Abs(plan.StopLoss-tt.wantStop) > 1e-9 {
			t.Errorf("%s: expected %.2f/%.2f, got %v/%v", tt.name, tt.wantBuy, tt.wantStop, plan.BuyPrice, plan.StopLoss)
		}
	}
}

func TestDetect_InvariantsOnRandomWalks(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(42))
	matched := 0
	for i := 0; i < 2000; i++ {
		n := 100 + rng.Intn(200)
		closes := make([]float64, n)
		price := 20 + rng.Float64()*80
		drift := rng.Float64() * 0.004
		for j := range closes {
			price *= 1 + drift + (rng.Float64()-0.5)*0.03
			closes[j] = price
		}
		plan, verdict := Detect(closes, p)
		if n < p.MinHistory && verdict != VerdictInsufficientHistory {
			t.Fatalf("n=%d: expected insufficient history, got %s", n, verdict)
		}
		if verdict != VerdictMatched {
			if plan != nil {
				t.Fatalf("non-match returned a plan")
			}
			continue
		}
		matched++
		if !(plan.StopLoss > 0 && plan.StopLoss < plan.BuyPrice) {
			t.Fatalf("bad levels: %+v", plan)
		}
		if plan.RiskPct < p.MinRisk || plan.RiskPct > p.MaxRisk {
			t.Fatalf("risk out of band: %+v", plan)
		}
	}
	t.Logf("%d random walks matched", matched)
}
