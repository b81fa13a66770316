package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"flowmon/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Market   MarketConfig   `mapstructure:"market"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Flow     FlowConfig     `mapstructure:"flow"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MarketConfig selects the tracked market and poll cadence
type MarketConfig struct {
	Symbol       string        `mapstructure:"symbol"`
	Type         string        `mapstructure:"type"` // spot or futures
	PollInterval time.Duration `mapstructure:"poll_interval"`
	TradeLimit   int           `mapstructure:"trade_limit"`
}

// BinanceConfig holds exchange API configuration
type BinanceConfig struct {
	SpotAPIURL          string        `mapstructure:"spot_api_url"`
	FuturesAPIURL       string        `mapstructure:"futures_api_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// FlowConfig holds the analytics thresholds and smoothing settings
type FlowConfig struct {
	LargeTradeNotional      float64 `mapstructure:"large_trade_notional"`
	RollingWindowTrades     int     `mapstructure:"rolling_window_trades"`
	RollingWindowMinutes    int     `mapstructure:"rolling_window_minutes"`
	MinClusterSize          int     `mapstructure:"min_cluster_size"`
	ClusterWindowMs         int64   `mapstructure:"cluster_window_ms"`
	MinImbalancePercent     float64 `mapstructure:"min_imbalance_percent"`
	MinSpreadChangePercent  float64 `mapstructure:"min_spread_change_percent"`
	DetectionWindowMs       int64   `mapstructure:"detection_window_ms"`
	AlertsEnabled           bool    `mapstructure:"alerts_enabled"`
	VolumeSpikeMultiplier   float64 `mapstructure:"volume_spike_multiplier"`
	PriceChangePercent      float64 `mapstructure:"price_change_percent"`
	SpreadAnomalyMultiplier float64 `mapstructure:"spread_anomaly_multiplier"`
	TrendThreshold          float64 `mapstructure:"trend_threshold"`
	SmoothingAlpha          float64 `mapstructure:"smoothing_alpha"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MinSeverity    string        `mapstructure:"min_severity"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("FLOWMON")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.type", "spot")
	v.SetDefault("market.poll_interval", "5s")
	v.SetDefault("market.trade_limit", 100)

	v.SetDefault("binance.spot_api_url", "https://api.binance.com")
	v.SetDefault("binance.futures_api_url", "https://fapi.binance.com")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.max_retries", 3)
	v.SetDefault("binance.retry_delay_base", "1s")
	v.SetDefault("binance.max_idle_conns", 10)
	v.SetDefault("binance.max_idle_conns_per_host", 10)
	v.SetDefault("binance.idle_conn_timeout", "90s")

	v.SetDefault("flow.large_trade_notional", 100000.0)
	v.SetDefault("flow.rolling_window_trades", 100)
	v.SetDefault("flow.rolling_window_minutes", 5)
	v.SetDefault("flow.min_cluster_size", 3)
	v.SetDefault("flow.cluster_window_ms", 60000)
	v.SetDefault("flow.min_imbalance_percent", 30.0)
	v.SetDefault("flow.min_spread_change_percent", 10.0)
	v.SetDefault("flow.detection_window_ms", 60000)
	v.SetDefault("flow.alerts_enabled", true)
	v.SetDefault("flow.volume_spike_multiplier", 2.5)
	v.SetDefault("flow.price_change_percent", 1.5)
	v.SetDefault("flow.spread_anomaly_multiplier", 2.0)
	v.SetDefault("flow.trend_threshold", 0.01)
	v.SetDefault("flow.smoothing_alpha", 0.05)

	v.SetDefault("telegram.min_severity", "high")

	v.SetDefault("storage.db_path", "./data/flowmon.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if err := (models.MarketType(c.Market.Type)).Validate(); err != nil {
		return fmt.Errorf("market.type: %w", err)
	}
	if c.Market.PollInterval < 1*time.Second {
		return fmt.Errorf("market.poll_interval must be at least 1 second")
	}
	if c.Market.TradeLimit < 5 || c.Market.TradeLimit > 1000 {
		return fmt.Errorf("market.trade_limit must be between 5 and 1000")
	}

	if c.Binance.SpotAPIURL == "" {
		return fmt.Errorf("binance.spot_api_url is required")
	}
	if c.Binance.FuturesAPIURL == "" {
		return fmt.Errorf("binance.futures_api_url is required")
	}
	if c.Binance.Timeout < 1*time.Second {
		return fmt.Errorf("binance.timeout must be at least 1 second")
	}
	if c.Binance.MaxRetries < 1 {
		return fmt.Errorf("binance.max_retries must be at least 1")
	}

	if c.Flow.TrendThreshold <= 0 {
		return fmt.Errorf("flow.trend_threshold must be positive")
	}
	if c.Flow.SmoothingAlpha <= 0 || c.Flow.SmoothingAlpha >= 1 {
		return fmt.Errorf("flow.smoothing_alpha must be in (0, 1)")
	}
	thresholds := c.Thresholds()
	if err := thresholds.Validate(); err != nil {
		return err
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		validSeverities := map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
		if !validSeverities[c.Telegram.MinSeverity] {
			return fmt.Errorf("telegram.min_severity must be one of: low, medium, high, critical")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Thresholds maps the flow configuration onto the three threshold structs
// consumed by the analytics core.
func (c *Config) Thresholds() models.Thresholds {
	return models.Thresholds{
		Flow: models.FlowThresholds{
			LargeTradeNotional:   c.Flow.LargeTradeNotional,
			RollingWindowTrades:  c.Flow.RollingWindowTrades,
			RollingWindowMinutes: c.Flow.RollingWindowMinutes,
			MinClusterSize:       c.Flow.MinClusterSize,
			ClusterWindowMs:      c.Flow.ClusterWindowMs,
		},
		Confluence: models.ConfluenceThresholds{
			MinImbalancePercent:    c.Flow.MinImbalancePercent,
			MinSpreadChangePercent: c.Flow.MinSpreadChangePercent,
			DetectionWindowMs:      c.Flow.DetectionWindowMs,
		},
		Alerts: models.AlertThresholds{
			Enabled:                 c.Flow.AlertsEnabled,
			VolumeSpikeMultiplier:   c.Flow.VolumeSpikeMultiplier,
			PriceChangePercent:      c.Flow.PriceChangePercent,
			SpreadAnomalyMultiplier: c.Flow.SpreadAnomalyMultiplier,
		},
	}
}
