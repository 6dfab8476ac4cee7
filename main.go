package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/facilitymap/facility-engine/pkg/audit"
	"github.com/facilitymap/facility-engine/pkg/blob"
	"github.com/facilitymap/facility-engine/pkg/cache"
	"github.com/facilitymap/facility-engine/pkg/config"
	"github.com/facilitymap/facility-engine/pkg/database"
	"github.com/facilitymap/facility-engine/pkg/events"
	"github.com/facilitymap/facility-engine/pkg/handlers"
	"github.com/facilitymap/facility-engine/pkg/logging"
	"github.com/facilitymap/facility-engine/pkg/middleware"
	"github.com/facilitymap/facility-engine/pkg/repositories"
	"github.com/facilitymap/facility-engine/pkg/retry"
	"github.com/facilitymap/facility-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	poolMetricsInterval = 15 * time.Second
	shutdownTimeout     = 30 * time.Second
)

func main() {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("cache_durable_driver", cfg.Cache.DurableDriver),
		zap.String("cache_version", cfg.Cache.Version),
		zap.String("blob_driver", cfg.Blob.Driver),
		zap.Bool("admin_key_set", cfg.AdminAPIKey != ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	retryCfg := retry.DefaultConfig()
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Connection attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error", logging.SanitizeError(err)))
	}

	// Database
	db, err := retry.DoWithResult(ctx, retryCfg, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	go database.StartPoolMetricsCollector(ctx, db.Pool, poolMetricsInterval)

	// Cache
	tiered, checks, closeCache, err := buildCache(ctx, cfg, retryCfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()
	checks["database"] = func(ctx context.Context) error { return db.Ping(ctx) }

	// Image storage
	images, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	auditor := audit.NewSecurityAuditor(logger)
	directory := services.NewDirectory(services.DirectoryDeps{
		FacilityRepo: repositories.NewFacilityRepository(db),
		TaxonomyRepo: repositories.NewTaxonomyRepository(db.Pool),
		SettingsRepo: repositories.NewSettingsRepository(db.Pool),
		Cache:        tiered,
		Bus:          events.NewBus(logger),
		Auditor:      auditor,
		Images:       images,
		ImageBaseURL: cfg.Blob.PublicBaseURL,
		Logger:       logger,
	})

	if cfg.TaxonomySeedFile != "" {
		if _, err := directory.Taxonomies.Seed(ctx, cfg.TaxonomySeedFile); err != nil {
			return fmt.Errorf("failed to seed taxonomies: %w", err)
		}
	}

	services.NewCacheWarmer(directory, logger).RunScheduler(ctx, cfg.Cache.WarmInterval)

	// HTTP
	mux := http.NewServeMux()
	admin := handlers.Middleware(middleware.RequireAdminKey(cfg.AdminAPIKey, auditor))

	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewFacilitiesHandler(directory.Facilities, auditor, logger).RegisterRoutes(mux, admin)
	handlers.NewTaxonomiesHandler(directory.Taxonomies, auditor, logger).RegisterRoutes(mux, admin)
	handlers.NewSettingsHandler(directory, auditor, logger).RegisterRoutes(mux, admin)
	handlers.NewCacheHandler(directory, auditor, logger).RegisterRoutes(mux, admin)
	mux.Handle("GET /metrics", promhttp.Handler())

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(corsHandler.Handler(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting facility-engine", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// buildCache composes the memory tier with the configured durable tier and
// returns the health checks of the durable tier.
func buildCache(
	ctx context.Context,
	cfg *config.Config,
	retryCfg *retry.Config,
	logger *zap.Logger,
) (*cache.TieredCache, map[string]handlers.HealthCheck, func(), error) {
	checks := make(map[string]handlers.HealthCheck)
	closeFn := func() {}

	fast, err := cache.NewMemoryStore(cfg.Cache.MemoryEntries)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	var durable cache.KeyValueStore
	switch cfg.Cache.DurableDriver {
	case "redis":
		client, err := retry.DoWithResult(ctx, retryCfg, func() (*redis.Client, error) {
			return database.NewRedisClient(ctx, &cfg.Redis)
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		if client == nil {
			logger.Warn("Redis host not configured, running with the memory cache tier only")
			break
		}
		durable = cache.NewRedisStore(client)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		closeFn = func() { _ = client.Close() }
	case "sqlite":
		store, err := cache.NewSQLiteStore(ctx, cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open sqlite cache: %w", err)
		}
		durable = store
		closeFn = func() { _ = store.Close() }
	}

	tiered := cache.NewTieredCache(fast, durable, cache.Options{
		Prefix:  cfg.Cache.Prefix,
		Version: cfg.Cache.Version,
		TTLs: map[cache.Group]time.Duration{
			cache.GroupFacilities: cfg.Cache.TTLFor(string(cache.GroupFacilities)),
			cache.GroupTaxonomies: cfg.Cache.TTLFor(string(cache.GroupTaxonomies)),
			cache.GroupFrontend:   cfg.Cache.TTLFor(string(cache.GroupFrontend)),
		},
	}, logger)

	return tiered, checks, closeFn, nil
}

// buildBlobStore returns the image store, or nil when image cleanup is disabled.
func buildBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Driver {
	case "fs":
		store, err := blob.NewFSStore(cfg.Blob.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to open image directory: %w", err)
		}
		return store, nil
	case "s3":
		store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.Blob.S3Bucket,
			Region:          cfg.Blob.S3Region,
			Endpoint:        cfg.Blob.S3Endpoint,
			PathStyle:       cfg.Blob.S3PathStyle,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 image store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}
