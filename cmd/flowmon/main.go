package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"flowmon/internal/binance"
	"flowmon/internal/config"
	"flowmon/internal/logger"
	"flowmon/internal/models"
	"flowmon/internal/monitor"
	"flowmon/internal/storage"
	"flowmon/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	client := binance.NewClient(
		cfg.Binance.SpotAPIURL,
		cfg.Binance.FuturesAPIURL,
		cfg.Binance.Timeout,
		binance.ClientConfig{
			MaxRetries:          cfg.Binance.MaxRetries,
			RetryDelayBase:      cfg.Binance.RetryDelayBase,
			MaxIdleConns:        cfg.Binance.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Binance.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Binance.IdleConnTimeout,
		},
	)

	var notifier monitor.Notifier
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			models.Severity(cfg.Telegram.MinSeverity),
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	mon := monitor.New(client, store, notifier, monitor.Config{
		Symbol:         cfg.Market.Symbol,
		Market:         models.MarketType(cfg.Market.Type),
		PollInterval:   cfg.Market.PollInterval,
		TradeLimit:     cfg.Market.TradeLimit,
		TrendThreshold: cfg.Flow.TrendThreshold,
		SmoothingAlpha: cfg.Flow.SmoothingAlpha,
	}, cfg.Thresholds())

	mon.Subscribe(func(s monitor.Snapshot) {
		var last float64
		if s.Data != nil && s.Data.Ticker != nil {
			last = s.Data.Ticker.LastPrice
		}
		stats := s.RollingStats
		if stats == nil {
			stats = &models.RollingWindowStats{}
		}
		logger.Info("Published %s/%s: last=%.2f delta=%.0f buy=%d sell=%d large=%d cluster=%t events=%d alerts=%d",
			s.Symbol, s.Market, last, stats.NetDelta, stats.BuyCount, stats.SellCount,
			stats.LargeTradeCount, s.ClusterDetected, len(s.Confluence), len(s.Alerts))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Starting order-flow monitor (symbol: %s, market: %s, interval: %v, trade_limit: %d)",
		cfg.Market.Symbol, cfg.Market.Type, cfg.Market.PollInterval, cfg.Market.TradeLimit)

	if err := mon.Start(ctx); err != nil {
		logger.Fatal("Failed to start monitor: %v", err)
	}

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	mon.Stop()
	mon.Shutdown()
	cancel()
	logger.Info("Service stopped")
}
