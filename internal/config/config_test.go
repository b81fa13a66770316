package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, "market:\n  symbol: BTCUSDT\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Market.Type != "spot" {
		t.Errorf("market.type default %q, want spot", cfg.Market.Type)
	}
	if cfg.Market.PollInterval != 5*time.Second {
		t.Errorf("poll_interval default %v, want 5s", cfg.Market.PollInterval)
	}
	if cfg.Market.TradeLimit != 100 {
		t.Errorf("trade_limit default %d, want 100", cfg.Market.TradeLimit)
	}
	if cfg.Binance.SpotAPIURL != "https://api.binance.com" {
		t.Errorf("spot_api_url default %q", cfg.Binance.SpotAPIURL)
	}
	if cfg.Flow.LargeTradeNotional != 100000 {
		t.Errorf("large_trade_notional default %v, want 100000", cfg.Flow.LargeTradeNotional)
	}
	if cfg.Flow.SmoothingAlpha != 0.05 {
		t.Errorf("smoothing_alpha default %v, want 0.05", cfg.Flow.SmoothingAlpha)
	}
	if !cfg.Flow.AlertsEnabled {
		t.Error("alerts_enabled should default to true")
	}
	if cfg.Telegram.Enabled {
		t.Error("telegram should default to disabled")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults %q/%q, want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfigFile(t, `
market:
  symbol: ETHUSDT
  type: futures
  poll_interval: 10s
  trade_limit: 250
flow:
  large_trade_notional: 250000
  min_imbalance_percent: 40
  smoothing_alpha: 0.1
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Market.Symbol != "ETHUSDT" || cfg.Market.Type != "futures" {
		t.Errorf("market override not applied: %+v", cfg.Market)
	}
	if cfg.Market.PollInterval != 10*time.Second || cfg.Market.TradeLimit != 250 {
		t.Errorf("market tuning not applied: %+v", cfg.Market)
	}
	if cfg.Flow.LargeTradeNotional != 250000 || cfg.Flow.MinImbalancePercent != 40 {
		t.Errorf("flow override not applied: %+v", cfg.Flow)
	}
	if cfg.Flow.SmoothingAlpha != 0.1 {
		t.Errorf("smoothing_alpha override %v, want 0.1", cfg.Flow.SmoothingAlpha)
	}
	// Untouched keys keep their defaults.
	if cfg.Flow.MinSpreadChangePercent != 10 {
		t.Errorf("min_spread_change_percent %v, want default 10", cfg.Flow.MinSpreadChangePercent)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging override not applied: %+v", cfg.Logging)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func loadValidConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(writeConfigFile(t, "market:\n  symbol: BTCUSDT\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := loadValidConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty symbol", func(c *Config) { c.Market.Symbol = "" }},
		{"bad market type", func(c *Config) { c.Market.Type = "margin" }},
		{"sub-second poll interval", func(c *Config) { c.Market.PollInterval = 500 * time.Millisecond }},
		{"trade limit too small", func(c *Config) { c.Market.TradeLimit = 2 }},
		{"trade limit too large", func(c *Config) { c.Market.TradeLimit = 5000 }},
		{"empty spot url", func(c *Config) { c.Binance.SpotAPIURL = "" }},
		{"zero retries", func(c *Config) { c.Binance.MaxRetries = 0 }},
		{"zero trend threshold", func(c *Config) { c.Flow.TrendThreshold = 0 }},
		{"alpha out of range", func(c *Config) { c.Flow.SmoothingAlpha = 1.5 }},
		{"negative notional", func(c *Config) { c.Flow.LargeTradeNotional = -1 }},
		{"cluster size below two", func(c *Config) { c.Flow.MinClusterSize = 1 }},
		{"imbalance above 100", func(c *Config) { c.Flow.MinImbalancePercent = 150 }},
		{"telegram enabled without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "123" }},
		{"telegram enabled without chat", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "t" }},
		{"bad min severity", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
			c.Telegram.ChatID = "123"
			c.Telegram.MinSeverity = "urgent"
		}},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadValidConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestThresholdsMapping(t *testing.T) {
	cfg := loadValidConfig(t)
	cfg.Flow.LargeTradeNotional = 75000
	cfg.Flow.MinImbalancePercent = 35
	cfg.Flow.AlertsEnabled = false
	cfg.Flow.VolumeSpikeMultiplier = 3.0

	th := cfg.Thresholds()
	if th.Flow.LargeTradeNotional != 75000 {
		t.Errorf("flow mapping %v, want 75000", th.Flow.LargeTradeNotional)
	}
	if th.Confluence.MinImbalancePercent != 35 {
		t.Errorf("confluence mapping %v, want 35", th.Confluence.MinImbalancePercent)
	}
	if th.Alerts.Enabled {
		t.Error("alerts mapping must carry the enabled flag")
	}
	if th.Alerts.VolumeSpikeMultiplier != 3.0 {
		t.Errorf("alerts mapping %v, want 3.0", th.Alerts.VolumeSpikeMultiplier)
	}
}
