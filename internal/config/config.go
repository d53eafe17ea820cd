package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"coinwatch/internal/assets"
	"coinwatch/internal/logging"
)

// Storage drivers accepted in database.driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	News      NewsConfig      `mapstructure:"news"`
	Assets    []assets.Asset  `mapstructure:"assets"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects and tunes the watch store.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs evaluation cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AlignToInterval bool          `mapstructure:"align"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	Concurrency     int           `mapstructure:"concurrency"`
}

// QuotesConfig picks the price provider.
type QuotesConfig struct {
	Provider    string          `mapstructure:"provider"`
	AltCurrency string          `mapstructure:"alt_currency"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	UserAgent   string          `mapstructure:"user_agent"`
	CoinGecko   CoinGeckoConfig `mapstructure:"coingecko"`
	Chainlink   ChainlinkConfig `mapstructure:"chainlink"`
}

// CoinGeckoConfig covers the simple/price REST API.
type CoinGeckoConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ChainlinkConfig covers on-chain aggregator access.
type ChainlinkConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
	FXFeed string `mapstructure:"fx_feed"`
}

// SentimentConfig covers the Fear & Greed endpoint.
type SentimentConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FeedConfig is one labelled news feed with fallback URLs.
type FeedConfig struct {
	Label string   `mapstructure:"label"`
	URLs  []string `mapstructure:"urls"`
}

// NewsConfig controls the news aggregator.
type NewsConfig struct {
	Primary      FeedConfig    `mapstructure:"primary"`
	Secondary    FeedConfig    `mapstructure:"secondary"`
	Keywords     []string      `mapstructure:"keywords"`
	PerFeedLimit int           `mapstructure:"per_feed_limit"`
	FinalLimit   int           `mapstructure:"final_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TelegramConfig 描述 Telegram Bot 参数。
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	APIBase        string        `mapstructure:"api_base"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// HTTPConfig controls the operations HTTP server.
type HTTPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	APIToken   string `mapstructure:"api_token"`
}

// MetricsConfig names the Prometheus namespace.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("COINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telegram.bot_token", "COINWATCH_TELEGRAM_BOT_TOKEN", "BOT_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv reads ./.env when present; existing environment wins.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "coinwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "coinwatch.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.startup_delay", "10s")
	v.SetDefault("scheduler.align", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x636f696e))
	v.SetDefault("scheduler.concurrency", 4)

	v.SetDefault("quotes.provider", assets.ProviderCoinGecko)
	v.SetDefault("quotes.alt_currency", "idr")
	v.SetDefault("quotes.timeout", "20s")
	v.SetDefault("quotes.user_agent", "Mozilla/5.0 (TelegramBot; +https://t.me/)")
	v.SetDefault("quotes.coingecko.base_url", "https://api.coingecko.com/api/v3")

	v.SetDefault("sentiment.base_url", "https://api.alternative.me")
	v.SetDefault("sentiment.timeout", "20s")

	v.SetDefault("news.primary.label", "Investing.com")
	v.SetDefault("news.primary.urls", []string{"https://www.investing.com/rss/news_301.rss"})
	v.SetDefault("news.secondary.label", "CNBC")
	v.SetDefault("news.secondary.urls", []string{
		"https://www.cnbc.com/id/10000664/device/rss/rss.html",
		"https://www.cnbc.com/id/100003114/device/rss/rss.html",
	})
	v.SetDefault("news.per_feed_limit", 15)
	v.SetDefault("news.final_limit", 8)
	v.SetDefault("news.timeout", "20s")

	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.request_timeout", "20s")
	v.SetDefault("telegram.session_ttl", "15m")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_addr", "127.0.0.1:8080")

	v.SetDefault("metrics.namespace", "coinwatch")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of postgres, sqlite, memory")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.StartupDelay < 0 {
		return fmt.Errorf("scheduler.startup_delay cannot be negative")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be greater than zero")
	}
	switch c.Quotes.Provider {
	case assets.ProviderCoinGecko:
	case assets.ProviderChainlink:
		if c.Quotes.Chainlink.RPCURL == "" {
			return fmt.Errorf("quotes.chainlink.rpc_url is required for the chainlink provider")
		}
	default:
		return fmt.Errorf("quotes.provider must be coingecko or chainlink")
	}
	if strings.TrimSpace(c.Quotes.AltCurrency) == "" {
		return fmt.Errorf("quotes.alt_currency is required")
	}
	if c.Quotes.Timeout <= 0 {
		return fmt.Errorf("quotes.timeout must be greater than zero")
	}
	if len(c.News.Primary.URLs) == 0 {
		return fmt.Errorf("news.primary.urls must list at least one feed")
	}
	if c.News.PerFeedLimit <= 0 || c.News.FinalLimit <= 0 {
		return fmt.Errorf("news limits must be greater than zero")
	}
	if c.Telegram.Enabled && c.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("telegram.poll_timeout must be greater than zero")
	}
	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr is required when http is enabled")
	}
	return nil
}

// RequireBotToken is checked by commands that talk to Telegram.
func (c *Config) RequireBotToken() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token 必须配置 (或设置 BOT_TOKEN)")
	}
	return nil
}
