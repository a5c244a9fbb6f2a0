package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txsentry/internal/application"
	"txsentry/internal/config"
	"txsentry/internal/domain"
	"txsentry/internal/infrastructure/clickhouse"
	"txsentry/internal/infrastructure/ethrpc"
	"txsentry/internal/infrastructure/kafka"
	"txsentry/internal/infrastructure/logging"
	"txsentry/internal/infrastructure/metrics"
	"txsentry/internal/infrastructure/moralis"
	"txsentry/internal/infrastructure/storage"
	"txsentry/internal/infrastructure/telemetry"
	"txsentry/internal/infrastructure/webacy"
	"txsentry/internal/interfaces/httpapi"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	if err := cfg.RequireProvider(); err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/analyzer.log"
	}
	if _, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       logFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}); err != nil {
		slog.Error("logger init error", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "txsentry-analyzer", version, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	registry, err := storage.Open(ctx, storage.Config{
		MySQLDSN:   cfg.RegistryDSN,
		SQLitePath: cfg.RegistrySQLitePath,
		RedisAddr:  cfg.RedisAddr,
		CacheTTL:   cfg.RegistryCacheTTL,
	})
	if err != nil {
		slog.Error("registry error", "err", err)
		os.Exit(1)
	}
	defer registry.Close()

	transactions, err := moralis.NewClient(moralis.Config{
		BaseURL:    cfg.MoralisURL,
		APIKey:     cfg.MoralisAPIKey,
		RateLimit:  cfg.ProviderRateLimit,
		MaxRetries: cfg.ProviderMaxRetries,
		Timeout:    cfg.FetchTimeout,
	})
	if err != nil {
		slog.Error("transaction provider error", "err", err)
		os.Exit(1)
	}

	observer := metrics.New()
	deps := application.Dependencies{
		Transactions: transactions,
		Pairs:        transactions,
		Registry:     registry,
		Observer:     observer,
	}

	if cfg.WebacyAPIKey != "" {
		riskIntel, err := webacy.NewClient(webacy.Config{
			BaseURL:    cfg.WebacyURL,
			APIKey:     cfg.WebacyAPIKey,
			RateLimit:  cfg.ProviderRateLimit,
			MaxRetries: cfg.ProviderMaxRetries,
			Timeout:    cfg.FetchTimeout,
		})
		if err != nil {
			slog.Error("risk intelligence provider error", "err", err)
			os.Exit(1)
		}
		deps.RiskIntel = riskIntel
	} else {
		slog.Info("WEBACY_API_KEY not set; token threat endpoint disabled")
	}

	if cfg.MarketClickhouse != "" {
		market, err := clickhouse.NewMarketRepository(cfg.MarketClickhouse)
		if err != nil {
			slog.Error("market data error", "err", err)
			os.Exit(1)
		}
		defer market.Close()
		deps.Prices = market
	}

	if cfg.RPCURL != "" {
		rpc, err := ethrpc.NewClient(ethrpc.Config{URL: cfg.RPCURL})
		if err != nil {
			slog.Error("rpc error", "err", err)
			os.Exit(1)
		}
		if latest, err := rpc.LatestBlockNumber(ctx); err != nil {
			slog.Warn("rpc not reachable; contract checks may fail", "err", err)
		} else {
			slog.Info("rpc connected", "latest_block", latest)
		}
		deps.Contracts = rpc
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:     cfg.KafkaBrokers,
			TopicPrefix: cfg.KafkaTopicPrefix,
		})
		if err != nil {
			slog.Error("kafka producer error", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		deps.Publisher = producer
	}

	if cfg.NativePriceUSD <= 0 {
		slog.Warn("NATIVE_PRICE_USD not set; sandwich profit excludes gas")
	}

	analyzer, err := application.NewAnalyzer(deps, application.AnalyzerConfig{
		Chain:              cfg.Chain,
		Fetch:              application.FetchConfig{Timeout: cfg.FetchTimeout, Workers: cfg.FetchWorkers},
		DefaultMaxPages:    cfg.DefaultMaxPages,
		DefaultSensitivity: domain.Sensitivity(cfg.DefaultSensitivity),
		NativePriceUSD:     cfg.NativePriceUSD,
	})
	if err != nil {
		slog.Error("analyzer error", "err", err)
		os.Exit(1)
	}

	httpServer, err := httpapi.NewServer(analyzer, registry, observer.Handler(), httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	slog.Info("analyzer started",
		"chain", cfg.Chain,
		"risk_intel", deps.RiskIntel != nil,
		"market_data", deps.Prices != nil,
		"contract_checks", deps.Contracts != nil,
		"publisher", deps.Publisher != nil,
	)
	if err := httpServer.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
		cancel()
	}
	slog.Info("analyzer stopped")
}
