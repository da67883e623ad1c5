package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"VCPHunter/internal/model"
	"VCPHunter/internal/notifier"
	"VCPHunter/internal/recorder"
)

// ErrRunInProgress is returned when a scan is requested while one is running.
var ErrRunInProgress = errors.New("scan already in progress")

// Runner executes one scan.
type Runner interface {
	Run(ctx context.Context) (*model.RunSummary, error)
}

// Scheduler runs the daily scan on a cron schedule and answers chat commands.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Recorder recorder.Recorder
	Ctx      context.Context

	log     *zap.Logger
	running sync.Mutex

	mu   sync.Mutex
	last *model.RunSummary
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner, rec recorder.Recorder, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		Runner:   runner,
		Recorder: rec,
		Ctx:      ctx,
		log:      log,
	}
}

// Register adds the daily scan task.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, s.dailyScan); err != nil {
		return fmt.Errorf("register daily scan: %w", err)
	}
	s.log.Info("daily scan registered", zap.String("cron", dailyCron))
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes a scan immediately unless one is already running.
func (s *Scheduler) RunNow(ctx context.Context) (*model.RunSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) (*model.RunSummary, error) {
	summary, err := s.Runner.Run(ctx)
	if summary != nil {
		s.mu.Lock()
		s.last = summary
		s.mu.Unlock()
	}
	return summary, err
}

func (s *Scheduler) dailyScan() {
	s.log.Info("running daily scan")
	if _, err := s.RunNow(s.Ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Warn("daily scan skipped, previous run still active")
			return
		}
		s.log.Error("daily scan failed", zap.Error(err))
	}
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	switch cmd {
	case "/scan":
		if !s.running.TryLock() {
			return "⏳ A scan is already running."
		}
		go func() {
			defer s.running.Unlock()
			if _, err := s.run(s.Ctx); err != nil {
				s.log.Error("manual scan failed", zap.Error(err))
			}
		}()
		return "🔎 Scan started. The report follows when it finishes."
	case "/status":
		return s.status()
	default:
		return "Available commands:\n• /scan - run the VCP scan now\n• /status - last run summary\n• /help - this message"
	}
}

func (s *Scheduler) status() string {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last != nil {
		return notifier.FormatRunFooter(last)
	}

	rec, err := s.Recorder.LastRun()
	if err != nil {
		s.log.Error("load last run", zap.Error(err))
		return "⚠️ Run journal unavailable."
	}
	if rec == nil {
		return "No scan has run yet."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧾 <b>Last run</b> %s | %s\n", rec.StartedAt.Format(time.DateTime), rec.Status))
	b.WriteString(fmt.Sprintf("Universe: %d | Scored: %d | Evaluated: %d | Setups: %d | Skipped: %d",
		rec.Universe, rec.Scored, rec.Evaluated, rec.Setups, rec.Skipped))
	if rec.Err != "" {
		b.WriteString("\nError: " + html.EscapeString(rec.Err))
	}
	totals, err := s.Recorder.SkipTotals(rec.RunID)
	if err != nil {
		s.log.Warn("load skip totals", zap.String("run_id", rec.RunID), zap.Error(err))
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	byStage := map[string][]string{}
	var stages []string
	for _, k := range keys {
		stage, reason, _ := strings.Cut(k, "/")
		if _, ok := byStage[stage]; !ok {
			stages = append(stages, stage)
		}
		byStage[stage] = append(byStage[stage], fmt.Sprintf("%s=%d", reason, totals[k]))
	}
	for _, st := range stages {
		b.WriteString(fmt.Sprintf("\nSkipped %s: %s", st, strings.Join(byStage[st], ", ")))
	}
	return b.String()
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
