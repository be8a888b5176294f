// Package main provides the Kafka intake service for eventcanon.
//
// The ingester consumes raw producer event documents from a Kafka topic and
// pushes each one through the same processing pipeline as the HTTP surface.
// Delivery is at-least-once; redelivered messages collapse onto their prior
// canonical record through the idempotency keys, so the consumer commits
// offsets eagerly and relies on the pipeline for duplicate safety.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/segmentio/kafka-go"

	"github.com/eventcanon-io/eventcanon/internal/config"
	"github.com/eventcanon-io/eventcanon/internal/idempotency"
	"github.com/eventcanon-io/eventcanon/internal/mapping"
	"github.com/eventcanon-io/eventcanon/internal/normalization"
	"github.com/eventcanon-io/eventcanon/internal/processing"
	"github.com/eventcanon-io/eventcanon/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingester"

	maxMessageBytes = 10 << 20 // 10 MB
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("EVENTCANON_INGESTER_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("Starting eventcanon ingester",
		slog.String("service", name),
		slog.String("version", version),
	)

	brokers := config.ParseCommaSeparatedList(
		config.GetEnvStr("EVENTCANON_KAFKA_BROKERS", "localhost:9092"),
	)
	topic := config.GetEnvStr("EVENTCANON_KAFKA_TOPIC", "events")
	groupID := config.GetEnvStr("EVENTCANON_KAFKA_GROUP_ID", "eventcanon-ingester")

	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close()
	}()

	eventStore, err := storage.NewEventStore(dbConn)
	if err != nil {
		logger.Error("Failed to initialize event store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	mappingConfig, err := mapping.LoadConfig(mapping.ConfigPath())
	if err != nil {
		logger.Warn("Failed to load mapping config, using built-in mappings",
			slog.String("error", err.Error()),
		)
	}

	normalizer := normalization.NewNormalizer(mapping.NewRegistry(mappingConfig))

	bucketWidth := config.GetEnvDuration("EVENTCANON_DEDUP_BUCKET_WIDTH", idempotency.DefaultBucketWidth)

	processor := processing.NewProcessor(eventStore, eventStore, normalizer,
		processing.WithBucketWidth(bucketWidth),
		processing.WithLogger(logger),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: maxMessageBytes,
	})

	defer func() {
		_ = reader.Close()
	}()

	logger.Info("Kafka reader initialized",
		slog.Any("brokers", brokers),
		slog.String("topic", topic),
		slog.String("group_id", groupID),
		slog.Duration("dedup_bucket_width", bucketWidth),
	)

	// Cancel the consume loop on SIGINT/SIGTERM for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consume(ctx, reader, processor, logger); err != nil {
		logger.Error("Consumer stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("eventcanon ingester stopped")
}

// consume reads messages until the context is canceled, pushing each document
// through the pipeline synchronously, one at a time.
//
// Message handling:
//   - Undecodable payloads are logged and skipped; there is no raw document
//     to audit, so they never reach the pipeline.
//   - Rejected and duplicate outcomes are normal results and only logged.
//   - System errors (storage outages) are logged and the message is skipped;
//     the raw event, where captured, stays retryable.
func consume(
	ctx context.Context,
	reader *kafka.Reader,
	processor *processing.Processor,
	logger *slog.Logger,
) error {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		}

		processMessage(ctx, processor, logger, msg)
	}
}

// processMessage decodes a single Kafka message and runs it through the pipeline.
func processMessage(
	ctx context.Context,
	processor *processing.Processor,
	logger *slog.Logger,
	msg kafka.Message,
) {
	start := time.Now()

	var doc map[string]interface{}
	if err := json.Unmarshal(msg.Value, &doc); err != nil {
		logger.Warn("Skipping undecodable message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return
	}

	outcome, err := processor.ProcessEvent(ctx, &processing.Submission{
		Document:   doc,
		RawPayload: msg.Value,
	})
	if err != nil {
		logger.Error("Event processing failed",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return
	}

	status := "stored"

	switch {
	case outcome.Rejected:
		status = "rejected"
	case outcome.Duplicate:
		status = "duplicate"
	}

	logger.Info("Message processed",
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.String("status", status),
		slog.Int64("raw_event_id", outcome.RawEventID),
		slog.String("idempotency_key", outcome.IdempotencyKey),
		slog.Duration("duration", time.Since(start)),
	)
}
