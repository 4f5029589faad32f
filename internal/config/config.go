package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"price-high-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Binance      BinanceConfig      `mapstructure:"binance"`
	Collector    CollectorConfig    `mapstructure:"collector"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Breakthrough BreakthroughConfig `mapstructure:"breakthrough"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Redis        RedisConfig        `mapstructure:"redis"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the breakthrough polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BinanceConfig covers the futures market-data REST API.
type BinanceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	QuoteAsset        string        `mapstructure:"quote_asset"`
}

// CollectorConfig tunes the historical-high collection pipeline.
type CollectorConfig struct {
	GroupSize      int           `mapstructure:"group_size"`
	GroupDelay     time.Duration `mapstructure:"group_delay"`
	PageDelay      time.Duration `mapstructure:"page_delay"`
	TimeframeDelay time.Duration `mapstructure:"timeframe_delay"`
	PageLimit      int           `mapstructure:"page_limit"`
	Retries        int           `mapstructure:"retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RefreshCron    string        `mapstructure:"refresh_cron"`
	Symbols        []string      `mapstructure:"symbols"`
	Blacklist      []string      `mapstructure:"blacklist"`
}

// CacheConfig locates the snapshot file and its freshness ceiling.
type CacheConfig struct {
	DataDir      string        `mapstructure:"data_dir"`
	SnapshotFile string        `mapstructure:"snapshot_file"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// BreakthroughConfig controls the polling detector.
type BreakthroughConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	SuppressRepeats  bool          `mapstructure:"suppress_repeats"`
	TriggeredStore   string        `mapstructure:"triggered_store"`
	TriggeredTTL     time.Duration `mapstructure:"triggered_ttl"`
	MaxResultsPerMsg int           `mapstructure:"max_results_per_message"`
	EventRetention   time.Duration `mapstructure:"event_retention"`
	Watches          []WatchConfig `mapstructure:"watches"`
}

// WatchConfig seeds an alert when no database is configured.
type WatchConfig struct {
	Name               string  `mapstructure:"name"`
	Symbol             string  `mapstructure:"symbol"`
	Timeframe          string  `mapstructure:"timeframe"`
	WatchAll           bool    `mapstructure:"watch_all"`
	MinBreakPercentage float64 `mapstructure:"min_break_pct"`
}

// AlertingConfig defines routing of breakthrough notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// TelegramConfig describes the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// KafkaConfig describes the event topic breakthroughs are published to.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig is used by the shared triggered-symbol set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// HTTPConfig exposes the query API and metrics.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxRows   int `mapstructure:"max_rows"`
	ChartBars int `mapstructure:"chart_bars"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("HIGHWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("app.name", "highwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x68696768))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.request_timeout", "10s")
	v.SetDefault("binance.user_agent", "highwatcher/1.0")
	v.SetDefault("binance.requests_per_second", 20.0)
	v.SetDefault("binance.burst", 10)
	v.SetDefault("binance.quote_asset", "USDT")

	v.SetDefault("collector.group_size", 8)
	v.SetDefault("collector.group_delay", "800ms")
	v.SetDefault("collector.page_delay", "100ms")
	v.SetDefault("collector.timeframe_delay", "200ms")
	v.SetDefault("collector.page_limit", 1000)
	v.SetDefault("collector.retries", 0)
	v.SetDefault("collector.retry_delay", "1s")
	v.SetDefault("collector.refresh_cron", "")
	v.SetDefault("collector.symbols", []string{})
	v.SetDefault("collector.blacklist", []string{})

	v.SetDefault("cache.data_dir", "data/cache")
	v.SetDefault("cache.snapshot_file", "historical_highs.json")
	v.SetDefault("cache.max_age", "168h")

	v.SetDefault("breakthrough.enabled", true)
	v.SetDefault("breakthrough.suppress_repeats", true)
	v.SetDefault("breakthrough.triggered_store", "memory")
	v.SetDefault("breakthrough.triggered_ttl", "24h")
	v.SetDefault("breakthrough.max_results_per_message", 20)
	v.SetDefault("breakthrough.event_retention", "720h")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.kafka.enabled", false)
	v.SetDefault("alerting.kafka.brokers", []string{})
	v.SetDefault("alerting.kafka.topic", "breakthroughs")
	v.SetDefault("alerting.kafka.write_timeout", "10s")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "highwatcher")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("export.max_rows", 1000)
	v.SetDefault("export.chart_bars", 30)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Collector.GroupSize <= 0 {
		return fmt.Errorf("collector.group_size must be greater than zero")
	}
	if c.Collector.PageLimit <= 0 || c.Collector.PageLimit > 1500 {
		return fmt.Errorf("collector.page_limit must be within 1..1500")
	}
	if c.Collector.Retries < 0 {
		return fmt.Errorf("collector.retries cannot be negative")
	}
	if c.Cache.DataDir == "" || c.Cache.SnapshotFile == "" {
		return fmt.Errorf("cache.data_dir and cache.snapshot_file are required")
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("cache.max_age must be greater than zero")
	}
	if c.Binance.RequestsPerSecond < 0 {
		return fmt.Errorf("binance.requests_per_second cannot be negative")
	}
	switch c.Breakthrough.TriggeredStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("breakthrough.triggered_store must be memory or redis, got %q", c.Breakthrough.TriggeredStore)
	}
	for i, w := range c.Breakthrough.Watches {
		if !w.WatchAll && w.Symbol == "" {
			return fmt.Errorf("breakthrough.watches[%d]: symbol required unless watch_all", i)
		}
		if w.MinBreakPercentage < 0 {
			return fmt.Errorf("breakthrough.watches[%d]: min_break_pct cannot be negative", i)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if c.Alerting.Kafka.Enabled && (len(c.Alerting.Kafka.Brokers) == 0 || c.Alerting.Kafka.Topic == "") {
		return fmt.Errorf("alerting.kafka.brokers and alerting.kafka.topic are required")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	return nil
}

// SnapshotPath joins the data dir and snapshot file name.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.Cache.DataDir, c.Cache.SnapshotFile)
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
