// Package main provides the eventcanon event ingestion service.
//
// The service accepts heterogeneous producer events over HTTP, normalizes
// them to the canonical record shape, deduplicates submissions with derived
// idempotency keys and exposes reporting queries over the stored events.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/eventcanon-io/eventcanon/internal/api"
	"github.com/eventcanon-io/eventcanon/internal/api/middleware"
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
	name    = "eventcanon"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting eventcanon service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("producer_rps", middlewareConfig.ProducerRPS),
		slog.Int("producer_burst", middlewareConfig.ProducerBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	// Load storage configuration
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		_ = dbConn.Close() // Ensure connection closes on normal shutdown
	}()

	eventStore, err := storage.NewEventStore(dbConn)
	if err != nil {
		logger.Error("Failed to initialize event store", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	logger.Info("Event store initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
		slog.Int("database_max_open_conns", storageConfig.MaxOpenConns),
		slog.Int("database_max_idle_conns", storageConfig.MaxIdleConns),
		slog.Duration("database_conn_max_lifetime", storageConfig.ConnMaxLifetime),
		slog.Duration("database_conn_max_idle_time", storageConfig.ConnMaxIdleTime),
	)

	// Build the normalization registry from built-ins plus the optional
	// mapping config file.
	mappingConfig, err := mapping.LoadConfig(mapping.ConfigPath())
	if err != nil {
		logger.Warn("Failed to load mapping config, using built-in mappings",
			slog.String("error", err.Error()),
		)
	}

	registry := mapping.NewRegistry(mappingConfig)

	logger.Info("Mapping registry initialized",
		slog.Any("producers", registry.Producers()),
	)

	normalizer := normalization.NewNormalizer(registry)

	bucketWidth := config.GetEnvDuration("EVENTCANON_DEDUP_BUCKET_WIDTH", idempotency.DefaultBucketWidth)

	processor := processing.NewProcessor(eventStore, eventStore, normalizer,
		processing.WithBucketWidth(bucketWidth),
		processing.WithLogger(logger),
	)

	logger.Info("Processing pipeline initialized",
		slog.Duration("dedup_bucket_width", bucketWidth),
	)

	var keyStore storage.KeyStore

	authEnabled := config.GetEnvBool("EVENTCANON_AUTH_ENABLED", false)
	if authEnabled {
		keyStore = loadKeyStore(logger)

		logger.Info("Producer authentication enabled")
	} else {
		logger.Warn("Producer authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set EVENTCANON_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	server := api.NewServer(serverConfig, processor, eventStore, eventStore, keyStore, rateLimiter)

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("eventcanon service stopped")
}

// loadKeyStore builds an in-memory key store from EVENTCANON_API_KEYS, a
// comma-separated list of producer:key pairs issued by the keygen tool.
func loadKeyStore(logger *slog.Logger) storage.KeyStore {
	keyStore := storage.NewInMemoryKeyStore()

	raw := config.GetEnvStr("EVENTCANON_API_KEYS", "")
	for _, pair := range config.ParseCommaSeparatedList(raw) {
		producerID, keyValue, found := strings.Cut(pair, ":")
		if !found || producerID == "" || keyValue == "" {
			logger.Warn("Skipping malformed API key entry",
				slog.String("entry", storage.MaskKey(pair)),
			)

			continue
		}

		key := &storage.Key{
			ID:          producerID + "-key",
			Key:         keyValue,
			ProducerID:  producerID,
			Name:        producerID + " ingest key",
			Permissions: []string{"events:write"},
			CreatedAt:   time.Now(),
			Active:      true,
		}

		if err := keyStore.Add(key); err != nil {
			logger.Warn("Failed to register API key",
				slog.String("producer_id", producerID),
				slog.String("error", err.Error()),
			)

			continue
		}

		logger.Info("Registered producer API key",
			slog.String("producer_id", producerID),
			slog.String("key", storage.MaskKey(keyValue)),
		)
	}

	return keyStore
}
