package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"VCPHunter/internal/collector"
	"VCPHunter/internal/fund"
	"VCPHunter/internal/model"
	"VCPHunter/internal/momentum"
	"VCPHunter/internal/recorder"
	"VCPHunter/internal/strategy"
	"VCPHunter/internal/universe"
)

// vcpCloses rises 0.2 per day from 50 for 240 days then contracts into
// 96..100 twice. Detection yields buy 100.10 and stop 95.04.
func vcpCloses() []float64 {
	closes := make([]float64, 0, 250)
	for i := 0; i < 240; i++ {
		closes = append(closes, 50+0.2*float64(i))
	}
	return append(closes, 96, 97, 98, 99, 100, 96, 97, 98, 99, 100)
}

func downCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 200 - 0.4*float64(i)
	}
	return closes
}

func stock(sym, name string) model.Asset {
	return model.Asset{Symbol: sym, Exchange: model.ExchangeNASDAQ, Tradable: true, Marginable: true, Name: name}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (c *captureSender) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	return c.err
}

func (c *captureSender) all() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.msgs, "\n")
}

type memRecorder struct {
	runs []*model.RunSummary
}

func (m *memRecorder) RecordRun(s *model.RunSummary) error       { m.runs = append(m.runs, s); return nil }
func (m *memRecorder) LastRun() (*recorder.RunRecord, error)     { return nil, nil }
func (m *memRecorder) SkipTotals(string) (map[string]int, error) { return nil, nil }
func (m *memRecorder) Close() error                              { return nil }

func newPipeline(t *testing.T, cfg Config, src *collector.MockSource, sender *captureSender, rec *memRecorder) *Pipeline {
	t.Helper()
	col := collector.NewCollector(src, time.Second)
	sizer, err := fund.NewSizer(100000, 0.02, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	return NewPipeline(cfg, Deps{
		Assets:    src,
		Filter:    universe.NewFilter(universe.Config{}, nil),
		Ranker:    momentum.NewRanker(momentum.DefaultConfig(), col, nil),
		Collector: col,
		Params:    strategy.DefaultParams(),
		Sizer:     sizer,
		Sender:    sender,
		Recorder:  rec,
	}, nil)
}

func TestRun_EndToEnd(t *testing.T) {
	src := &collector.MockSource{
		Assets: []model.Asset{
			stock("ABC", "ABC Corp"),
			stock("XYZ", "XYZ Trust"),
			stock("DEF", "Falling Inc"),
			stock("NEW", "Recent IPO Inc"),
		},
		Series: map[string][]float64{
			"ABC": vcpCloses(),
			"XYZ": vcpCloses(),
			"DEF": downCloses(250),
		},
	}
	sender := &captureSender{}
	rec := &memRecorder{}
	summary, err := newPipeline(t, Config{}, src, sender, rec).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Status != model.RunCompleted {
		t.Errorf("expected completed, got %s", summary.Status)
	}
	if summary.UniverseAccepted != 3 || summary.UniverseRejected != 1 {
		t.Errorf("unexpected universe counts %d/%d", summary.UniverseAccepted, summary.UniverseRejected)
	}
	if summary.Ranked != 2 || summary.Evaluated != 2 {
		t.Errorf("expected 2 ranked and evaluated, got %d/%d", summary.Ranked, summary.Evaluated)
	}
	if len(summary.Setups) != 1 {
		t.Fatalf("expected 1 setup, got %+v", summary.Setups)
	}
	s := summary.Setups[0]
	if s.Symbol != "ABC" || s.BuyPrice != 100.10 || s.StopLoss != 95.04 || s.Quantity != 249 {
		t.Errorf("unexpected setup %+v", s)
	}

	counts := summary.SkipCounts()
	if counts[model.StageUniverse][model.SkipBlacklisted] != 1 ||
		counts[model.StageMomentum][model.SkipNoData] != 1 ||
		counts[model.StagePattern][model.SkipNoPattern] != 1 {
		t.Errorf("unexpected skip counts %v", counts)
	}

	msg := sender.all()
	for _, want := range []string{"VCP Daily Scan", "ABC", "$100.10", "$95.04", "<code>249</code>"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
	if summary.Delivered != 1 {
		t.Errorf("expected 1 delivered chunk, got %d", summary.Delivered)
	}
	if len(rec.runs) != 1 || rec.runs[0].RunID != summary.RunID || summary.RunID == "" {
		t.Error("run must be recorded once with its id")
	}
	if summary.FinishedAt.Before(summary.StartedAt) {
		t.Error("finish must not precede start")
	}
}

func TestRun_NoSetups(t *testing.T) {
	src := &collector.MockSource{
		Assets: []model.Asset{stock("DEF", "Falling Inc")},
		Series: map[string][]float64{"DEF": downCloses(250)},
	}
	sender := &captureSender{}
	summary, err := newPipeline(t, Config{}, src, sender, &memRecorder{}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Setups) != 0 || !strings.Contains(sender.all(), "No VCP breakouts today") {
		t.Errorf("expected sentinel report, got %q", sender.all())
	}
}

func TestRun_UnfundableSetupIsReported(t *testing.T) {
	src := &collector.MockSource{
		Assets: []model.Asset{stock("ABC", "ABC Corp")},
		Series: map[string][]float64{"ABC": vcpCloses()},
	}
	sender := &captureSender{}
	p := newPipeline(t, Config{}, src, sender, &memRecorder{})
	tiny, err := fund.NewSizer(100, 0.02, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	p.deps.Sizer = tiny

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Setups) != 1 || summary.Setups[0].Symbol != "ABC" || summary.Setups[0].Quantity != 0 {
		t.Fatalf("expected ABC kept with quantity 0, got %+v", summary.Setups)
	}
	msg := sender.all()
	for _, want := range []string{"ABC", "$100.10", "unfundable"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "No VCP breakouts today") {
		t.Error("an unfundable setup is still a setup")
	}
}

func TestRun_UniverseFailureIsFatal(t *testing.T) {
	src := &collector.MockSource{AssetsErr: errors.New("503 service unavailable")}
	sender := &captureSender{}
	rec := &memRecorder{}
	summary, err := newPipeline(t, Config{}, src, sender, rec).Run(context.Background())

	var dse *model.DataSourceError
	if !errors.As(err, &dse) {
		t.Fatalf("expected DataSourceError, got %v", err)
	}
	if summary.Status != model.RunFailed || !strings.Contains(summary.Err, "503") {
		t.Errorf("unexpected summary %+v", summary)
	}
	if !strings.Contains(sender.all(), "Scanner Error") {
		t.Errorf("expected error report, got %q", sender.all())
	}
	if len(rec.runs) != 1 {
		t.Error("failed run must still be recorded")
	}
	if len(src.Batches()) != 0 {
		t.Error("no bars may be fetched after a universe failure")
	}
}

func TestRun_PerSymbolFailuresAreIsolated(t *testing.T) {
	src := &collector.MockSource{
		Assets: []model.Asset{stock("AAA", "A Co"), stock("BAD", "Bad Co"), stock("BOOM", "Boom Co"), stock("ZZZ", "Z Co")},
		Series: map[string][]float64{
			"AAA":  vcpCloses(),
			"BAD":  vcpCloses(),
			"BOOM": downCloses(245),
			"ZZZ":  vcpCloses(),
		},
		FailSymbol: func(sym string) bool { return sym == "BAD" },
	}
	p := newPipeline(t, Config{}, src, &captureSender{}, &memRecorder{})
	p.detect = func(closes []float64, params strategy.Params) (*model.TradePlan, strategy.Verdict) {
		if len(closes) == 245 {
			panic("corrupt series")
		}
		return strategy.Detect(closes, params)
	}

	summary, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := setupSymbols(summary.Setups); got != "[AAA ZZZ]" {
		t.Errorf("expected [AAA ZZZ], got %s", got)
	}
	counts := summary.SkipCounts()[model.StagePattern]
	if counts[model.SkipFetchFailed] != 1 || counts[model.SkipEvaluationFailed] != 1 {
		t.Errorf("unexpected pattern skips %v", counts)
	}
	for _, sk := range summary.Skips {
		if sk.Symbol == "BOOM" && !strings.Contains(sk.Detail, "panic") {
			t.Errorf("expected panic detail, got %q", sk.Detail)
		}
	}
}

func TestRun_KeepsRankingOrderAcrossWorkers(t *testing.T) {
	src := &collector.MockSource{Series: map[string][]float64{}}
	var want []string
	for i := 0; i < 12; i++ {
		sym := fmt.Sprintf("S%02d", i)
		src.Assets = append(src.Assets, stock(sym, sym+" Inc"))
		src.Series[sym] = vcpCloses()
		want = append(want, sym)
	}
	summary, err := newPipeline(t, Config{Concurrency: 5}, src, &captureSender{}, &memRecorder{}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := setupSymbols(summary.Setups); got != fmt.Sprint(want) {
		t.Errorf("expected %s, got %s", fmt.Sprint(want), got)
	}
}

func TestRun_ChunkedDeliveryAndSinkFailure(t *testing.T) {
	src := &collector.MockSource{Series: map[string][]float64{}}
	for i := 0; i < 6; i++ {
		sym := fmt.Sprintf("S%02d", i)
		src.Assets = append(src.Assets, stock(sym, sym+" Inc"))
		src.Series[sym] = vcpCloses()
	}

	sender := &captureSender{}
	summary, err := newPipeline(t, Config{ChunkSize: 300, Footer: true}, src, sender, &memRecorder{}).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.msgs) < 2 || summary.Delivered != len(sender.msgs) {
		t.Errorf("expected several delivered chunks, got %d/%d", summary.Delivered, len(sender.msgs))
	}
	for _, m := range sender.msgs {
		if len(m) > 300 {
			t.Errorf("chunk over limit: %d", len(m))
		}
	}
	if !strings.Contains(sender.all(), summary.RunID[:8]) {
		t.Error("footer must carry the run id")
	}

	failing := &captureSender{err: errors.New("telegram down")}
	summary, err = newPipeline(t, Config{}, src, failing, &memRecorder{}).Run(context.Background())
	if err != nil {
		t.Fatalf("sink failure must not fail the run: %v", err)
	}
	if summary.Status != model.RunCompleted || summary.Delivered != 0 || len(summary.Setups) != 6 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func setupSymbols(setups []model.Setup) string {
	out := make([]string, len(setups))
	for i, s := range setups {
		out[i] = s.Symbol
	}
	return fmt.Sprint(out)
}
