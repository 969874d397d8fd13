package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"perpwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Exchanges ExchangesConfig `mapstructure:"exchanges"`
	Detection DetectionConfig `mapstructure:"detection"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	Polling   PollingConfig   `mapstructure:"polling"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL alert audit log.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig enables the Redis-backed cooldown registry when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ExchangesConfig toggles the per-exchange stream clients.
type ExchangesConfig struct {
	QuoteAsset string         `mapstructure:"quote_asset"`
	Bybit      ExchangeConfig `mapstructure:"bybit"`
	Binance    ExchangeConfig `mapstructure:"binance"`
}

// ExchangeConfig configures one exchange connection.
type ExchangeConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	StreamURL      string        `mapstructure:"stream_url"`
	RESTBaseURL    string        `mapstructure:"rest_base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DetectionConfig tunes the streaming pump/dump detector.
type DetectionConfig struct {
	ThresholdPct float64       `mapstructure:"threshold_pct"`
	Window       time.Duration `mapstructure:"window"`
}

// EnrichConfig tunes the on-demand enrichment lookups.
type EnrichConfig struct {
	OIInterval     string        `mapstructure:"oi_interval"`
	LookbackCount  int           `mapstructure:"lookback_count"`
	RangeBlockDays int           `mapstructure:"range_block_days"`
	RangeMaxDays   int           `mapstructure:"range_max_days"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PollingConfig drives the REST polling risk variant.
type PollingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval"`
	History       time.Duration `mapstructure:"history"`
	PumpWindow    int           `mapstructure:"pump_window"`
	PumpPct       float64       `mapstructure:"pump_pct"`
	OIDeltaPct    float64       `mapstructure:"oi_delta_pct"`
	RiskThreshold float64       `mapstructure:"risk_threshold"`
}

// AlertingConfig defines alert gating and routing.
type AlertingConfig struct {
	Cooldown        time.Duration  `mapstructure:"cooldown"`
	RequireOIOK     bool           `mapstructure:"require_oi_confirm"`
	ConfirmOIPct    float64        `mapstructure:"confirm_oi_pct"`
	MinShortScore   float64        `mapstructure:"min_short_score"`
	AttachChart     bool           `mapstructure:"attach_chart"`
	Recipients      []string       `mapstructure:"recipients"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
	CommandsEnabled bool           `mapstructure:"commands_enabled"`
}

// TelegramConfig describes the Telegram bot transport.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PERPWATCH")
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
	v.SetDefault("app.name", "perpwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("exchanges.quote_asset", "USDT")
	v.SetDefault("exchanges.bybit.enabled", true)
	v.SetDefault("exchanges.bybit.stream_url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("exchanges.bybit.rest_base_url", "https://api.bybit.com")
	v.SetDefault("exchanges.bybit.request_timeout", "10s")
	v.SetDefault("exchanges.binance.enabled", true)
	v.SetDefault("exchanges.binance.stream_url", "wss://fstream.binance.com/ws")
	v.SetDefault("exchanges.binance.rest_base_url", "https://fapi.binance.com")
	v.SetDefault("exchanges.binance.request_timeout", "10s")

	v.SetDefault("detection.threshold_pct", 5.0)
	v.SetDefault("detection.window", "60s")

	v.SetDefault("enrich.oi_interval", "5min")
	v.SetDefault("enrich.lookback_count", 13)
	v.SetDefault("enrich.range_block_days", 900)
	v.SetDefault("enrich.range_max_days", 4000)
	v.SetDefault("enrich.request_timeout", "10s")

	v.SetDefault("polling.enabled", false)
	v.SetDefault("polling.interval", "60s")
	v.SetDefault("polling.history", "60m")
	v.SetDefault("polling.pump_window", 5)
	v.SetDefault("polling.pump_pct", 8.0)
	v.SetDefault("polling.oi_delta_pct", 3.0)
	v.SetDefault("polling.risk_threshold", 0.65)

	v.SetDefault("alerting.cooldown", "10m")
	v.SetDefault("alerting.require_oi_confirm", false)
	v.SetDefault("alerting.confirm_oi_pct", 1.0)
	v.SetDefault("alerting.min_short_score", 0.50)
	v.SetDefault("alerting.attach_chart", true)
	v.SetDefault("alerting.commands_enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Detection.ThresholdPct < 0 {
		return fmt.Errorf("detection.threshold_pct cannot be negative")
	}
	if c.Detection.Window <= 0 {
		return fmt.Errorf("detection.window must be greater than zero")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Enrich.LookbackCount < 2 {
		return fmt.Errorf("enrich.lookback_count must be at least 2")
	}
	if c.Enrich.RangeBlockDays <= 0 || c.Enrich.RangeMaxDays <= 0 {
		return fmt.Errorf("enrich range parameters must be greater than zero")
	}
	if c.Polling.Enabled && c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if len(c.Alerting.Recipients) == 0 {
			return fmt.Errorf("alerting.recipients is required when telegram is enabled")
		}
	}
	return nil
}
