// Package scanner runs one daily scan end to end: universe, momentum,
// pattern detection, sizing, report and delivery.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"VCPHunter/internal/collector"
	"VCPHunter/internal/fund"
	"VCPHunter/internal/model"
	"VCPHunter/internal/momentum"
	"VCPHunter/internal/notifier"
	"VCPHunter/internal/recorder"
	"VCPHunter/internal/strategy"
	"VCPHunter/internal/universe"
)

const (
	defaultConcurrency = 4
	defaultHistoryDays = 300
	defaultRunTimeout  = 15 * time.Minute
	notifyTimeout      = 30 * time.Second
)

// Config controls the run-level behavior of the pipeline.
type Config struct {
	HistoryDays int // calendar days fetched per leader for detection
	Concurrency int
	RunTimeout  time.Duration
	ChunkSize   int
	ChunkPace   time.Duration // pause between chunks, 0 sends back to back
	Report      notifier.ReportOptions
	Footer      bool // append run counters to the report
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Assets    collector.AssetSource
	Filter    *universe.Filter
	Ranker    *momentum.Ranker
	Collector *collector.Collector
	Params    strategy.Params
	Sizer     fund.Sizer
	Sender    notifier.Sender
	Recorder  recorder.Recorder
}

type detectFunc func(closes []float64, p strategy.Params) (*model.TradePlan, strategy.Verdict)

// Pipeline wires the scan stages together.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	now    func() time.Time
	detect detectFunc
}

// NewPipeline creates a Pipeline. Zero-valued knobs fall back to defaults.
func NewPipeline(cfg Config, deps Deps, log *zap.Logger) *Pipeline {
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = defaultHistoryDays
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = notifier.MaxMessageLen
	}
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Params == (strategy.Params{}) {
		deps.Params = strategy.DefaultParams()
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Sender == nil {
		deps.Sender = notifier.LogSender{Log: log}
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		log:    log,
		now:    time.Now,
		detect: strategy.Detect,
	}
}

// Run executes one scan. Only a universe failure is returned as an error;
// every other problem is recorded as a skip on the summary.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID))
	summary := &model.RunSummary{RunID: runID, StartedAt: p.now()}
	log.Info("scan started")

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancel()

	uni, err := p.deps.Filter.Select(ctx, p.deps.Assets)
	if err != nil {
		log.Error("universe unavailable, aborting scan", zap.Error(err))
		summary.Status = model.RunFailed
		summary.Err = err.Error()
		summary.Delivered = p.deliver(ctx, log, notifier.FormatErrorReport(err))
		p.finish(log, summary)
		return summary, err
	}
	summary.UniverseTotal = uni.Accepted + uni.Rejected
	summary.UniverseAccepted = uni.Accepted
	summary.UniverseRejected = uni.Rejected
	summary.Skips = append(summary.Skips, uni.Rejections...)

	rk := p.deps.Ranker.Rank(ctx, uni.Symbols)
	summary.Scored = rk.Scored
	summary.Ranked = len(rk.Top)
	summary.Skips = append(summary.Skips, rk.Skips...)

	for _, ev := range p.evaluate(ctx, log, rk.Top) {
		if ev.evaluated {
			summary.Evaluated++
		}
		if ev.skip != nil {
			summary.Skips = append(summary.Skips, *ev.skip)
			continue
		}
		setup := ev.setup
		setup.Quantity = p.deps.Sizer.Quantity(setup.BuyPrice, setup.StopLoss)
		if !setup.Fundable() {
			log.Info("setup unfundable at current risk", zap.String("symbol", setup.Symbol))
		}
		summary.Setups = append(summary.Setups, *setup)
	}

	report := model.ScanReport{
		Date:         summary.StartedAt,
		UniverseSize: uni.Accepted,
		Ranked:       summary.Ranked,
		Setups:       summary.Setups,
	}
	text := notifier.FormatScanReport(report, p.cfg.Report)
	summary.Status = model.RunCompleted
	if p.cfg.Footer {
		summary.FinishedAt = p.now()
		text += "\n\n" + notifier.FormatRunFooter(summary)
	}
	summary.Delivered = p.deliver(ctx, log, text)
	p.finish(log, summary)
	return summary, nil
}

type evaluation struct {
	setup     *model.Setup
	skip      *model.ItemResult
	evaluated bool
	done      bool
}

// evaluate fetches history and runs detection for each leader on a bounded
// worker pool. Results keep the ranking order.
func (p *Pipeline) evaluate(ctx context.Context, log *zap.Logger, leaders []model.MomentumScore) []evaluation {
	results := make([]evaluation, len(leaders))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.evaluateOne(ctx, log, leaders[i])
			}
		}()
	}

feed:
	for i := range leaders {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if !results[i].done {
			results[i] = skipped(leaders[i].Symbol, model.SkipEvaluationFailed, ctx.Err(), false)
		}
	}
	return results
}

func (p *Pipeline) evaluateOne(ctx context.Context, log *zap.Logger, leader model.MomentumScore) (ev evaluation) {
	sym := leader.Symbol
	defer func() {
		if r := recover(); r != nil {
			err := &model.PerSymbolError{Symbol: sym, Err: fmt.Errorf("panic: %v", r)}
			log.Error("evaluation panicked", zap.Error(err))
			ev = skipped(sym, model.SkipEvaluationFailed, err, false)
		}
	}()

	series, err := p.deps.Collector.History(ctx, sym, p.cfg.HistoryDays)
	if err != nil {
		perr := &model.PerSymbolError{Symbol: sym, Err: err}
		log.Warn("history fetch failed", zap.Error(perr))
		return skipped(sym, model.SkipFetchFailed, perr, false)
	}
	if series.Len() == 0 {
		return skipped(sym, model.SkipNoData, &model.PerSymbolError{Symbol: sym, Err: errors.New("empty history")}, false)
	}

	plan, verdict := p.detect(series.Closes(), p.deps.Params)
	if verdict != strategy.VerdictMatched || plan == nil {
		ev = skipped(sym, model.SkipNoPattern, nil, true)
		ev.skip.Detail = string(verdict)
		return ev
	}
	log.Info("setup detected",
		zap.String("symbol", sym),
		zap.Float64("buy", plan.BuyPrice),
		zap.Float64("stop", plan.StopLoss),
		zap.Float64("risk", plan.RiskPct),
	)
	return evaluation{
		setup: &model.Setup{
			Symbol:   sym,
			BuyPrice: plan.BuyPrice,
			StopLoss: plan.StopLoss,
			RiskPct:  plan.RiskPct,
			Momentum: leader.Score,
		},
		evaluated: true,
		done:      true,
	}
}

func skipped(sym string, reason model.SkipReason, err error, evaluated bool) evaluation {
	item := &model.ItemResult{Symbol: sym, Stage: model.StagePattern, Reason: reason}
	if err != nil {
		item.Detail = err.Error()
	}
	return evaluation{skip: item, evaluated: evaluated, done: true}
}

// deliver chunks and sends text. Failures are logged only.
// A context that already expired is replaced so the report still goes out.
func (p *Pipeline) deliver(ctx context.Context, log *zap.Logger, text string) int {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
	}
	chunks := notifier.Chunk(text, p.cfg.ChunkSize)
	delivered, err := notifier.SendChunks(ctx, p.deps.Sender, chunks, p.cfg.ChunkPace, log)
	if err != nil {
		log.Error("report delivery incomplete", zap.Int("delivered", delivered), zap.Int("chunks", len(chunks)), zap.Error(err))
	}
	return delivered
}

func (p *Pipeline) finish(log *zap.Logger, s *model.RunSummary) {
	s.FinishedAt = p.now()
	if err := p.deps.Recorder.RecordRun(s); err != nil {
		log.Error("record run", zap.Error(err))
	}
	log.Info("scan finished",
		zap.String("status", string(s.Status)),
		zap.Int("universe", s.UniverseAccepted),
		zap.Int("scored", s.Scored),
		zap.Int("ranked", s.Ranked),
		zap.Int("evaluated", s.Evaluated),
		zap.Int("setups", len(s.Setups)),
		zap.Int("skipped", len(s.Skips)),
		zap.Int("delivered", s.Delivered),
		zap.Duration("duration", s.Duration()),
	)
}
