package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txsentry/internal/application"
	"txsentry/internal/config"
	txkafka "txsentry/internal/infrastructure/kafka"
	"txsentry/internal/infrastructure/logging"
	"txsentry/internal/infrastructure/metrics"
	"txsentry/internal/infrastructure/storage"
	"txsentry/internal/infrastructure/telemetry"
	"txsentry/internal/streaming"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	if err := cfg.RequireKafka(); err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/labeler.log"
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

	shutdownTracing, err := telemetry.InitTracer(ctx, "txsentry-labeler", version, cfg.OtelEndpoint)
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
	if cfg.RegistryDSN == "" && cfg.RegistrySQLitePath == "" {
		slog.Warn("no persistent registry configured; labels are kept in memory only")
	}

	m := metrics.New()
	go serveMetrics(ctx, cfg.HTTPAddr, m.Handler())

	topic := txkafka.LabelsTopic(cfg.KafkaTopicPrefix)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	slog.Info("labeler started", "topic", topic, "group", cfg.KafkaGroupID)
	consume(ctx, reader, registry, m, cfg)
	slog.Info("labeler stopped")
}

func consume(ctx context.Context, reader *kafka.Reader, repo application.LabelRepository, m *metrics.Metrics, cfg config.Config) {
	tracer := otel.Tracer("txsentry/labeler")
	batch := application.NewLabelBatch()

	flush := func(reason string) {
		if batch.Len() == 0 {
			return
		}
		labels := batch.LabelCount()
		if err := batch.Flush(ctx, repo, reader); err != nil {
			m.IncLabelError("store")
			slog.Error("label batch flush error", "reason", reason, "err", err)
			return
		}
		m.AddLabelsStored(labels)
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.LabelFlushInterval)
		message, err := reader.FetchMessage(fetchCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				flush("interval")
				continue
			}
			m.IncLabelError("fetch")
			slog.Error("kafka fetch error", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		m.ObserveLabelMessage(message.Topic, message.Time)

		if typ := telemetry.KafkaHeader(message.Headers, telemetry.MessageTypeHeader); typ != "" && typ != string(streaming.MessageTypeAutomatedLabel) {
			slog.Debug("skipping message", "offset", message.Offset, "type", typ)
			if err := reader.CommitMessages(ctx, message); err != nil {
				m.IncLabelError("commit")
			}
			continue
		}

		decoded, err := streaming.Decode(message.Value)
		if err != nil {
			slog.Warn("message decode error", "offset", message.Offset, "err", err)
			m.IncLabelError("decode")
			if err := reader.CommitMessages(ctx, message); err != nil {
				m.IncLabelError("commit")
			}
			continue
		}

		messageCtx := telemetry.ExtractKafkaHeaders(ctx, message.Headers)
		if !trace.SpanContextFromContext(messageCtx).IsValid() && decoded.TraceID != "" {
			if ctxWithTrace, ok := telemetry.ContextWithTraceID(messageCtx, decoded.TraceID); ok {
				messageCtx = ctxWithTrace
			}
		}
		_, span := tracer.Start(messageCtx, "labeler.process_message", trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(
			attribute.String("message.type", string(decoded.Type)),
			attribute.String("message.address", decoded.Address),
			attribute.String("message.label", decoded.Label),
		)
		batch.Add(decoded, message)
		span.End()

		if batch.Len() >= cfg.LabelBatchSize {
			flush("size")
		}
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "err", err)
	}
}
