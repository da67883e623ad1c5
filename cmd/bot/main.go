package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"VCPHunter/internal/collector"
	"VCPHunter/internal/config"
	"VCPHunter/internal/fund"
	"VCPHunter/internal/momentum"
	"VCPHunter/internal/notifier"
	"VCPHunter/internal/recorder"
	"VCPHunter/internal/scanner"
	"VCPHunter/internal/scheduler"
	"VCPHunter/internal/strategy"
	"VCPHunter/internal/universe"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger, err := zap.NewProduction()
	if err != nil {
		return 1
	}
	defer logger.Sync()
	log := logger.Named("vcphunter")
	log.Info("VCPHunter starting")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("load .env", zap.Error(err))
	}

	// Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Error("load config", zap.Error(err))
		return 1
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config validation", zap.Error(err))
		return 1
	}

	// Init data sources
	assets, bars := dataSources(cfg)
	log.Info("data source ready", zap.String("assets", assets.Name()), zap.String("bars", bars.Name()))
	col := collector.NewCollector(bars, cfg.DataSource.Timeout)

	sizer, err := fund.NewSizer(cfg.Screener.AccountSize, cfg.Screener.RiskPerTrade, cfg.Screener.MaxPositionSize)
	if err != nil {
		log.Error("init sizer", zap.Error(err))
		return 1
	}

	// Init notifier
	var sender notifier.Sender = notifier.LogSender{Log: log.Named("report")}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log.Named("telegram"))
		sender = notifier.RetryingSender{Notifier: tn, MaxRetries: cfg.Telegram.MaxRetries}
	} else {
		log.Warn("telegram not configured, reports go to the log")
	}

	// Init recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log.Named("recorder"))
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", zap.Error(err))
		} else {
			rec = sr
			defer sr.Close()
		}
	}

	pipeline := scanner.NewPipeline(scanner.Config{
		HistoryDays: cfg.Screener.HistoryDays,
		Concurrency: cfg.Screener.Concurrency,
		RunTimeout:  cfg.Schedule.RunTimeout,
		ChunkSize:   notifier.MaxMessageLen,
		ChunkPace:   cfg.Telegram.ChunkPace,
		Report:      notifier.ReportOptions{MaxListed: cfg.Telegram.MaxListed},
		Footer:      cfg.Telegram.Footer,
	}, scanner.Deps{
		Assets: assets,
		Filter: universe.NewFilter(universe.Config{
			Exchanges: cfg.Screener.Exchanges,
			Blacklist: cfg.Screener.Blacklist,
		}, log.Named("universe")),
		Ranker: momentum.NewRanker(momentum.Config{
			LookbackDays: cfg.Screener.LookbackDays,
			MinPrice:     *cfg.Screener.MinPrice,
			TopN:         cfg.Screener.TopRSCount,
			UniverseCap:  *cfg.Screener.UniverseCap,
			BatchSize:    cfg.Screener.BatchSize,
		}, col, log.Named("momentum")),
		Collector: col,
		Params:    strategy.DefaultParams(),
		Sizer:     sizer,
		Sender:    sender,
		Recorder:  rec,
	}, log.Named("scanner"))

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Schedule.Enabled {
		if _, err := pipeline.Run(ctx); err != nil {
			log.Error("scan failed", zap.Error(err))
			return 1
		}
		return 0
	}

	// Daemon mode
	sched := scheduler.NewScheduler(ctx, pipeline, rec, log.Named("scheduler"))
	if err := sched.Register(cfg.Schedule.DailyCron); err != nil {
		log.Error("register cron task", zap.Error(err))
		return 1
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	if cfg.Schedule.RunOnStart {
		log.Info("run_on_start enabled, executing scan now")
		go func() {
			if _, err := sched.RunNow(ctx); err != nil {
				log.Error("startup scan failed", zap.Error(err))
			}
		}()
	}

	log.Info("VCPHunter is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")
	return 0
}

// dataSources picks the asset list and bar providers. Yahoo only serves
// bars, so the asset list still comes from Alpaca.
func dataSources(cfg *config.Config) (collector.AssetSource, collector.BarSource) {
	if cfg.DataSource.Provider == config.ProviderMock {
		demo := collector.NewDemoSource()
		return demo, demo
	}
	alp := collector.NewAlpacaSource(collector.AlpacaOptions{
		APIKey:     cfg.DataSource.APIKey,
		APISecret:  cfg.DataSource.APISecret,
		BaseURL:    cfg.DataSource.BaseURL,
		Feed:       cfg.DataSource.Feed,
		Adjustment: cfg.DataSource.Adjustment,
		Timeout:    cfg.DataSource.Timeout,
		Proxy:      cfg.Proxy,
	})
	if cfg.DataSource.Provider == config.ProviderYahoo {
		return alp, collector.NewYahooFetcher(cfg.Proxy, cfg.DataSource.Timeout)
	}
	return alp, alp
}
