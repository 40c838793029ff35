package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telhawk-systems/telhawk-webhooks/common/logging"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/blobstore"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/config"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/handlers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/keyclient"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/notify"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/pipeline"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/providers"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/ratelimit"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/records"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/secrets"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/server"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/internal/verifier"
	"github.com/telhawk-systems/telhawk-webhooks/ingest/migrations"

	natsclient "github.com/telhawk-systems/telhawk-webhooks/common/messaging/nats"
)

// recordStore is what the service needs from a record backend.
type recordStore interface {
	records.Store
	records.Expirer
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("webhooks"))
	logging.SetDefault(logger)

	slog.Info("Starting webhook ingest service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Secrets
	secretProvider, err := newSecretProvider(cfg.Secrets)
	if err != nil {
		log.Fatalf("Failed to initialize secrets: %v", err)
	}
	slog.Info("Secrets backend configured",
		slog.String("backend", cfg.Secrets.Backend),
		slog.Duration("cache_ttl", cfg.Secrets.CacheTTL),
	)

	// Provider registry. Plaid keys are fetched lazily and cached for the process lifetime.
	keys := keyclient.New(cfg.Plaid.KeyEndpoint, cfg.Plaid.Timeout)
	table := providers.DefaultProviders(keys, verifier.NewKeyCache())
	for _, p := range table {
		if j, ok := p.Verifier.(*verifier.JWT); ok {
			j.MaxTokenAge = cfg.Plaid.MaxTokenAge
		}
	}
	registry, err := providers.NewRegistry(table...)
	if err != nil {
		log.Fatalf("Failed to build provider registry: %v", err)
	}
	slog.Info("Providers registered", slog.Any("providers", registry.Names()))

	// Blob store
	blobs, err := blobstore.NewMinIO(blobstore.MinIOConfig{
		Endpoint:     cfg.Blob.Endpoint,
		AccessKey:    cfg.Blob.AccessKey,
		SecretKey:    cfg.Blob.SecretKey,
		UseTLS:       cfg.Blob.UseTLS,
		Region:       cfg.Blob.Region,
		Bucket:       cfg.Blob.Bucket,
		KMSKeyID:     cfg.Blob.KMSKeyID,
		StorageClass: cfg.Blob.StorageClass,
	})
	if err != nil {
		log.Fatalf("Failed to create blob store client: %v", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if cfg.Blob.EnsureBucket {
		if err := blobs.EnsureBucket(initCtx); err != nil {
			log.Printf("WARNING: Failed to ensure bucket %s: %v", cfg.Blob.Bucket, err)
		}
	}
	if err := blobs.CheckVersioning(initCtx); err != nil {
		log.Fatalf("Blob bucket unusable: %v", err)
	}
	cancel()

	// Record store
	store, err := newRecordStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}
	defer store.Close()
	go records.RunReaper(ctx, store, cfg.Records.ReapInterval, logger)
	slog.Info("Record store configured",
		slog.String("backend", cfg.Records.Backend),
		slog.Duration("reap_interval", cfg.Records.ReapInterval),
	)

	// Ingestion notifications
	var notifier notify.Notifier = notify.Noop{}
	checks := []handlers.Check{
		{Name: "records", Ping: store.Ping},
		{Name: "blobs", Ping: blobs.Ping},
	}
	if cfg.NATS.Enabled {
		js, err := natsclient.NewJetStreamClient(natsclient.Config{
			URL:  cfg.NATS.URL,
			Name: "telhawk-webhooks",
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer js.Close()

		streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := js.CreateOrUpdateStream(streamCtx, natsclient.WebhooksReceivedStream); err != nil {
			log.Fatalf("Failed to configure stream %s: %v", natsclient.WebhooksReceivedStream.Name, err)
		}
		cancel()

		notifier = notify.NewPublisher(js)
		checks = append(checks, handlers.Check{Name: "notifications", Ping: js.Ping})
		log.Printf("Ingestion notifications enabled (nats: %s)", cfg.NATS.URL)
	} else {
		log.Println("Ingestion notifications disabled")
	}

	// Rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Records.RedisURL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			log.Printf("WARNING: Failed to initialize Redis rate limiter: %v", err)
			log.Println("Continuing without rate limiting")
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			log.Printf("Rate limiting enabled: %d requests per %s per provider", cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
		log.Println("Rate limiting disabled in configuration")
	}
	defer rateLimiter.Close()

	p := pipeline.New(pipeline.Deps{
		Registry: registry,
		Secrets:  secretProvider,
		Dedup:    records.NewDedup(store),
		Blobs:    blobs,
		Records:  store,
		Notifier: notifier,
		Logger:   logger,
	}, pipeline.Options{
		KeyPrefix: cfg.Blob.Prefix,
		Retention: cfg.Ingestion.Retention,
	})

	// Initialize HTTP handlers
	handler := handlers.NewWebhookHandler(p, registry, rateLimiter, cfg.Ingestion.MaxBodyBytes, logger, checks...)
	router := server.NewRouter(handler)

	// Create server with config values
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Webhook ingest service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	stop()

	log.Println("Server stopped")
}

func newSecretProvider(cfg config.SecretsConfig) (secrets.Provider, error) {
	var p secrets.Provider
	switch cfg.Backend {
	case "file":
		fp, err := secrets.LoadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		p = fp
	case "env":
		p = secrets.NewEnvProvider(cfg.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown secrets backend: %s (supported: file, env)", cfg.Backend)
	}
	return secrets.NewCached(p, cfg.CacheTTL), nil
}

func newRecordStore(ctx context.Context, cfg *config.Config) (recordStore, error) {
	switch cfg.Records.Backend {
	case "redis":
		s, err := records.NewRedisStore(ctx, cfg.Records.RedisURL)
		if err != nil {
			return nil, err
		}
		s.Retention = cfg.Ingestion.Retention
		return s, nil
	case "postgres":
		if cfg.Records.AutoMigrate {
			if err := migrations.Up(cfg.Records.PostgresURL); err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		return records.NewPostgresStore(ctx, cfg.Records.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown records backend: %s (supported: redis, postgres)", cfg.Records.Backend)
	}
}
