package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// Providers accepted by data_source.provider.
const (
	ProviderAlpaca = "alpaca"
	ProviderYahoo  = "yahoo"
	ProviderMock   = "mock"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken   string        `yaml:"bot_token"`
		ChatID     string        `yaml:"chat_id"`
		MaxRetries int           `yaml:"max_retries"`
		ChunkPace  time.Duration `yaml:"chunk_pace"`
		MaxListed  int           `yaml:"max_listed"`
		Footer     bool          `yaml:"footer"`
	} `yaml:"telegram"`
	DataSource struct {
		Provider   string        `yaml:"provider"`
		APIKey     string        `yaml:"api_key"`
		APISecret  string        `yaml:"api_secret"`
		BaseURL    string        `yaml:"base_url"`
		Feed       string        `yaml:"feed"`
		Adjustment string        `yaml:"adjustment"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"data_source"`
	Screener struct {
		AccountSize     float64  `yaml:"account_size"`
		RiskPerTrade    float64  `yaml:"risk_per_trade"`
		MaxPositionSize float64  `yaml:"max_position_size"`
		MinPrice        *float64 `yaml:"min_price"`
		TopRSCount      int      `yaml:"top_rs_count"`
		UniverseCap     *int     `yaml:"universe_cap"`
		BatchSize       int      `yaml:"batch_size"`
		LookbackDays    int      `yaml:"lookback_days"`
		HistoryDays     int      `yaml:"history_days"`
		Concurrency     int      `yaml:"concurrency"`
		Exchanges       []string `yaml:"exchanges"`
		Blacklist       []string `yaml:"blacklist"`
	} `yaml:"screener"`
	Schedule struct {
		Enabled    bool          `yaml:"enabled"`
		DailyCron  string        `yaml:"daily_cron"`
		RunOnStart bool          `yaml:"run_on_start"`
		RunTimeout time.Duration `yaml:"run_timeout"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or the default location.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable overrides
// and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("TELEGRAM_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)

	str("DATA_PROVIDER", &c.DataSource.Provider)
	str("ALPACA_API_KEY", &c.DataSource.APIKey)
	str("ALPACA_SECRET_KEY", &c.DataSource.APISecret)
	str("ALPACA_BASE_URL", &c.DataSource.BaseURL)
	str("ALPACA_FEED", &c.DataSource.Feed)
	str("HTTPS_PROXY", &c.Proxy)

	float("ACCOUNT_SIZE", &c.Screener.AccountSize)
	float("RISK_PER_TRADE", &c.Screener.RiskPerTrade)
	float("MAX_POSITION_SIZE", &c.Screener.MaxPositionSize)
	integer("TOP_RS_COUNT", &c.Screener.TopRSCount)
	integer("SCAN_CONCURRENCY", &c.Screener.Concurrency)
	if v := os.Getenv("MIN_PRICE"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MIN_PRICE: %w", err))
		} else {
			c.Screener.MinPrice = &f
		}
	}
	if v := os.Getenv("UNIVERSE_CAP"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("UNIVERSE_CAP: %w", err))
		} else {
			c.Screener.UniverseCap = &n
		}
	}
	if v, ok := os.LookupEnv("BLACKLIST"); ok {
		c.Screener.Blacklist = splitList(v)
	}

	boolean("SCHEDULE_ENABLED", &c.Schedule.Enabled)
	boolean("RUN_ON_START", &c.Schedule.RunOnStart)
	str("CRON_DAILY", &c.Schedule.DailyCron)
	str("SQLITE_PATH", &c.Database.SQLitePath)

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = ProviderAlpaca
	}
	c.DataSource.Provider = strings.ToLower(c.DataSource.Provider)
	if c.DataSource.BaseURL == "" {
		c.DataSource.BaseURL = "https://paper-api.alpaca.markets"
	}
	if c.DataSource.Feed == "" {
		c.DataSource.Feed = "iex"
	}
	if c.DataSource.Adjustment == "" {
		c.DataSource.Adjustment = "all"
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 10 * time.Second
	}

	if c.Screener.AccountSize == 0 {
		c.Screener.AccountSize = 100000
	}
	if c.Screener.RiskPerTrade == 0 {
		c.Screener.RiskPerTrade = 0.02
	}
	if c.Screener.MaxPositionSize == 0 {
		c.Screener.MaxPositionSize = 0.25
	}
	if c.Screener.MinPrice == nil {
		p := 10.0
		c.Screener.MinPrice = &p
	}
	if c.Screener.TopRSCount == 0 {
		c.Screener.TopRSCount = 100
	}
	if c.Screener.UniverseCap == nil {
		n := 2000
		c.Screener.UniverseCap = &n
	}
	if c.Screener.BatchSize == 0 {
		c.Screener.BatchSize = 100
	}
	if c.Screener.LookbackDays == 0 {
		c.Screener.LookbackDays = 100
	}
	if c.Screener.HistoryDays == 0 {
		c.Screener.HistoryDays = 300
	}
	if c.Screener.Concurrency == 0 {
		c.Screener.Concurrency = 4
	}

	if c.Telegram.ChunkPace == 0 {
		c.Telegram.ChunkPace = time.Second
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 30 16 * * 1-5"
	}
	if c.Schedule.RunTimeout == 0 {
		c.Schedule.RunTimeout = 15 * time.Minute
	}
}

// Validate checks that all required fields are set and in range.
func (c *Config) Validate() error {
	switch c.DataSource.Provider {
	case ProviderAlpaca:
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return fmt.Errorf("data_source.api_key and data_source.api_secret are required for alpaca")
		}
	case ProviderYahoo:
		// Yahoo only serves bars; the asset list still comes from Alpaca.
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return fmt.Errorf("alpaca credentials are required for the asset list")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("data_source.provider %q is not one of alpaca, yahoo, mock", c.DataSource.Provider)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}
	if c.Screener.AccountSize <= 0 {
		return fmt.Errorf("screener.account_size must be positive")
	}
	if c.Screener.RiskPerTrade <= 0 || c.Screener.RiskPerTrade > 1 {
		return fmt.Errorf("screener.risk_per_trade must be in (0, 1]")
	}
	if c.Screener.MaxPositionSize <= 0 || c.Screener.MaxPositionSize > 1 {
		return fmt.Errorf("screener.max_position_size must be in (0, 1]")
	}
	if *c.Screener.MinPrice < 0 {
		return fmt.Errorf("screener.min_price must not be negative")
	}
	if c.Screener.TopRSCount <= 0 {
		return fmt.Errorf("screener.top_rs_count must be positive")
	}
	if *c.Screener.UniverseCap < 0 {
		return fmt.Errorf("screener.universe_cap must not be negative")
	}
	if c.Screener.BatchSize <= 0 || c.Screener.Concurrency <= 0 {
		return fmt.Errorf("screener.batch_size and screener.concurrency must be positive")
	}
	return nil
}

// TelegramEnabled reports whether reports go to a chat rather than the log.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func splitList(v string) []string {
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
